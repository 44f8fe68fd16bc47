package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tenxcards/services/cards"
)

const exportURLExpiry = 15 * time.Minute

// handleExportFlashcards writes the user's full collection as CSV to object
// storage and returns a presigned download link.
func (a *API) handleExportFlashcards(w http.ResponseWriter, r *http.Request) {
	if a.store.S3 == nil {
		respondError(w, &apiError{
			Status:  http.StatusFailedDependency,
			Code:    codeDependencyMissing,
			Message: "object storage is not configured",
		})
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	var all []cards.Flashcard
	for page := 1; ; page++ {
		batch, _, err := a.cards.List(r.Context(), userID, cards.ListParams{
			Sort:   "created_at",
			Limit:  maxPageSize,
			Offset: (page - 1) * maxPageSize,
		})
		if err != nil {
			respondError(w, internal(err))
			return
		}
		all = append(all, batch...)
		if len(batch) < maxPageSize {
			break
		}
	}
	if len(all) == 0 {
		respondError(w, notFound("no flashcards to export"))
		return
	}

	body, err := exportCSV(all)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	digest := sha256.Sum256(body)
	key := fmt.Sprintf("exports/%s/%s.csv", userID, uuid.New())

	err = a.store.S3.PutObject(r.Context(), a.config.ExportBucket, key,
		bytes.NewReader(body), int64(len(body)), hex.EncodeToString(digest[:]))
	if err != nil {
		respondError(w, internal(err))
		return
	}

	url, err := a.store.S3.PresignGet(r.Context(), a.config.ExportBucket, key, exportURLExpiry)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"card_count": len(all),
		"expires_in": int(exportURLExpiry.Seconds()),
	})
}

func exportCSV(list []cards.Flashcard) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write([]string{"front_text", "back_text", "source", "created_at"}); err != nil {
		return nil, err
	}
	for _, card := range list {
		record := []string{
			card.FrontText,
			card.BackText,
			card.Source,
			card.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty export")
	}
	return buf.Bytes(), nil
}
