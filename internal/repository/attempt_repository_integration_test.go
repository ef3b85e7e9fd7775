//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"servo-commissioning/internal/config"
	"servo-commissioning/internal/database"
	"servo-commissioning/internal/model"
)

// PostgresAttemptSuite runs against the database described by the usual
// SERVO_COMMISSIONING_DATABASE_* variables.
type PostgresAttemptSuite struct {
	suite.Suite
	db   *database.DB
	repo AttemptRepository
}

func TestPostgresAttemptSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("SERVO_COMMISSIONING_DATABASE_HOST") == "" {
		t.Skip("SERVO_COMMISSIONING_DATABASE_HOST not set")
	}
	suite.Run(t, new(PostgresAttemptSuite))
}

func (s *PostgresAttemptSuite) SetupSuite() {
	cfg, err := config.Load()
	s.Require().NoError(err)
	cfg.Database.Enabled = true
	cfg.Database.MigrationsPath = "../../migrations"

	logger := zap.NewNop()
	s.db, err = database.NewConnection(&cfg.Database, logger)
	s.Require().NoError(err)
	s.Require().NoError(database.NewMigrator(s.db, logger, &cfg.Database).Up())

	s.repo = NewAttemptRepository(s.db, logger)
}

func (s *PostgresAttemptSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *PostgresAttemptSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), "TRUNCATE commissioning_attempts")
	s.Require().NoError(err)
}

func (s *PostgresAttemptSuite) record(part string, kind model.DeviceKind, startedAt time.Time) *model.AttemptRecord {
	req, err := model.NewCommissioningRequest(part, "r_gripper", kind)
	s.Require().NoError(err)
	rec := model.NewAttemptRecord(uuid.New(), req, startedAt.UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.repo.Create(context.Background(), rec))
	return rec
}

func (s *PostgresAttemptSuite) TestCreateGetUpdate() {
	ctx := context.Background()
	rec := s.record("right arm", model.DeviceKindStandardServo, time.Now())

	got, err := s.repo.GetByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(model.AttemptStatusRunning, got.Status)
	s.Nil(got.Outcome)

	rec.Complete(model.Failure(model.OutcomeMultipleDevicesDetected, "Multiple motors detected: [1 2].", nil), time.Now())
	s.Require().NoError(s.repo.Update(ctx, rec))

	got, err = s.repo.GetByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.True(got.IsCompleted())
	s.Require().NotNil(got.Outcome)
	s.Equal(model.OutcomeMultipleDevicesDetected, *got.Outcome)
	s.Require().NotNil(got.Detail)
	s.Equal("Multiple motors detected: [1 2].", *got.Detail)
}

func (s *PostgresAttemptSuite) TestGetAndUpdateUnknown() {
	ctx := context.Background()

	_, err := s.repo.GetByID(ctx, uuid.New())
	s.ErrorIs(err, ErrAttemptNotFound)

	req, err := model.NewCommissioningRequest("head", "l_antenna", model.DeviceKindReducedVoltageServo)
	s.Require().NoError(err)
	s.ErrorIs(s.repo.Update(ctx, model.NewAttemptRecord(uuid.New(), req, time.Now())), ErrAttemptNotFound)
}

func (s *PostgresAttemptSuite) TestListFiltersAndPages() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s.record("right arm", model.DeviceKindStandardServo, base.Add(time.Duration(i)*time.Minute))
	}
	newest := s.record("head", model.DeviceKindReducedVoltageServo, base.Add(10*time.Minute))

	all, total, err := s.repo.List(ctx, &AttemptFilter{PerPage: 2})
	s.Require().NoError(err)
	s.Equal(6, total)
	s.Require().Len(all, 2)
	s.Equal(newest.ID, all[0].ID)

	page3, total, err := s.repo.List(ctx, &AttemptFilter{Page: 3, PerPage: 2})
	s.Require().NoError(err)
	s.Equal(6, total)
	s.Len(page3, 2)

	kind := model.DeviceKindReducedVoltageServo
	heads, total, err := s.repo.List(ctx, &AttemptFilter{DeviceKind: &kind})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(heads, 1)
	s.Equal(newest.ID, heads[0].ID)
}

func (s *PostgresAttemptSuite) TestDeleteOlderThanKeepsRunning() {
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	done := s.record("right arm", model.DeviceKindStandardServo, old)
	done.Complete(model.Success("Motor configured.", nil), old.Add(time.Second))
	s.Require().NoError(s.repo.Update(ctx, done))
	running := s.record("left arm", model.DeviceKindStandardServo, old)

	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	_, err = s.repo.GetByID(ctx, running.ID)
	s.NoError(err)
	_, err = s.repo.GetByID(ctx, done.ID)
	s.ErrorIs(err, ErrAttemptNotFound)
}
