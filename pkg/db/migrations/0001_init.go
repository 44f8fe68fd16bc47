package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email        string     `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string     `gorm:"type:text;not null"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	DeletedAt    *time.Time `gorm:"type:timestamptz;index"`
}

type AuthSession struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	RefreshToken string     `gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt    time.Time  `gorm:"type:timestamptz;not null"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	RevokedAt    *time.Time `gorm:"type:timestamptz"`
	User         User       `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type GenerationSession struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_session_user_request"`
	ClientRequestID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_session_user_request"`
	Model               string     `gorm:"type:text;not null"`
	GeneratedCount      int        `gorm:"type:int;not null"`
	SavedUnchangedCount int        `gorm:"type:int;not null;default:0"`
	SavedEditedCount    int        `gorm:"type:int;not null;default:0"`
	RejectedCount       int        `gorm:"type:int;not null;default:0"`
	SourceTextLength    int        `gorm:"type:int;not null;default:0"`
	StartedAt           time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	CompletedAt         *time.Time `gorm:"type:timestamptz"`
	DeletedAt           *time.Time `gorm:"type:timestamptz;index"`
	User                User       `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Flashcard struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID  `gorm:"type:uuid;not null;index:idx_flashcard_user_deleted"`
	FrontText           string     `gorm:"type:varchar(500);not null"`
	BackText            string     `gorm:"type:varchar(500);not null"`
	Source              string     `gorm:"type:text;not null"`
	GenerationSessionID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt           time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	DeletedAt           *time.Time `gorm:"type:timestamptz;index:idx_flashcard_user_deleted"`

	User              User               `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	GenerationSession *GenerationSession `gorm:"foreignKey:GenerationSessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

type UserStats struct {
	UserID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionsOpened    int64     `gorm:"type:bigint;not null;default:0"`
	SessionsCompleted int64     `gorm:"type:bigint;not null;default:0"`
	CardsSaved        int64     `gorm:"type:bigint;not null;default:0"`
	CardsRejected     int64     `gorm:"type:bigint;not null;default:0"`
	UpdatedAt         time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (UserStats) TableName() string { return "user_stats" }

type UsageEvent struct {
	ID      int64             `gorm:"type:bigserial;primaryKey"`
	UserID  uuid.UUID         `gorm:"type:uuid;not null;index"`
	Subject string            `gorm:"type:text;not null"`
	Payload datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&User{},
		&AuthSession{},
		&GenerationSession{},
		&Flashcard{},
		&UserStats{},
		&UsageEvent{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&AuthSession{}, "User"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&GenerationSession{}, "User"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Flashcard{}, "User"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Flashcard{}, "GenerationSession"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&UsageEvent{},
		&UserStats{},
		&Flashcard{},
		&GenerationSession{},
		&AuthSession{},
		&User{},
	)
}
