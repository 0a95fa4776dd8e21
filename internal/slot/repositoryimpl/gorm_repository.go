package repositoryimpl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kazz187/devguild/internal/database"
	"github.com/kazz187/devguild/internal/slot"
)

type serverRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Host      string `gorm:"size:255;not null"`
	Port      int    `gorm:"not null"`
	User      string `gorm:"column:ssh_user;size:64;not null"`
	Capacity  int    `gorm:"not null"`
	UsedCount int    `gorm:"not null;default:0"`
	Status    string `gorm:"size:16;not null"`
	UpdatedAt time.Time
}

func (serverRow) TableName() string { return "workspace_servers" }

func (r *serverRow) toEntity() *slot.Server {
	return &slot.Server{
		ID:        r.ID,
		Host:      r.Host,
		Port:      r.Port,
		User:      r.User,
		Capacity:  r.Capacity,
		UsedCount: r.UsedCount,
		Status:    slot.ServerStatus(r.Status),
		UpdatedAt: r.UpdatedAt,
	}
}

type reservationRow struct {
	ID          string `gorm:"primaryKey;size:26"`
	ServerID    string `gorm:"size:64;index;not null"`
	ServerHost  string `gorm:"size:255"`
	ServerPort  int
	ServerUser  string `gorm:"size:64"`
	DeveloperID string `gorm:"size:64;index;not null"`
	TaskID      string `gorm:"size:26;index;not null"`
	CreatedAt   time.Time
	ReleasedAt  *time.Time
}

func (reservationRow) TableName() string { return "workspace_reservations" }

func (r *reservationRow) toEntity() *slot.Reservation {
	return &slot.Reservation{
		ID:          r.ID,
		ServerID:    r.ServerID,
		ServerHost:  r.ServerHost,
		ServerPort:  r.ServerPort,
		ServerUser:  r.ServerUser,
		DeveloperID: r.DeveloperID,
		TaskID:      r.TaskID,
		CreatedAt:   r.CreatedAt,
		ReleasedAt:  r.ReleasedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&serverRow{}, &reservationRow{})
}

var errNoServer = errors.New("no server with capacity")

// ReserveFirstAvailable walks candidate servers in id order and claims the
// first one whose conditional increment succeeds, so two callers can never
// both take the last slot.
func (r *GormRepository) ReserveFirstAvailable(ctx context.Context, developerID, taskID string) (*slot.Reservation, error) {
	var res *slot.Reservation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []serverRow
		if err := tx.Where("status = ? AND used_count < capacity", string(slot.ServerActive)).Order("id").Find(&candidates).Error; err != nil {
			return database.WrapReadError("servers", err)
		}
		for _, s := range candidates {
			upd := tx.Model(&serverRow{}).
				Where("id = ? AND status = ? AND used_count < capacity", s.ID, string(slot.ServerActive)).
				Updates(map[string]any{"used_count": gorm.Expr("used_count + 1"), "updated_at": time.Now()})
			if upd.Error != nil {
				return database.WrapWriteError("server", upd.Error)
			}
			if upd.RowsAffected == 0 {
				continue
			}
			row := &reservationRow{
				ID:          ulid.Make().String(),
				ServerID:    s.ID,
				ServerHost:  s.Host,
				ServerPort:  s.Port,
				ServerUser:  s.User,
				DeveloperID: developerID,
				TaskID:      taskID,
				CreatedAt:   time.Now(),
			}
			if err := tx.Create(row).Error; err != nil {
				return database.WrapWriteError("reservation", err)
			}
			res = row.toEntity()
			return nil
		}
		return errNoServer
	})
	if errors.Is(err, errNoServer) {
		return nil, slot.ErrNoCapacity()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *GormRepository) Release(ctx context.Context, reservationID string) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row reservationRow
		if err := tx.Select("id", "server_id").First(&row, "id = ?", reservationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return database.WrapReadError("reservation", err)
		}
		upd := tx.Model(&reservationRow{}).
			Where("id = ? AND released_at IS NULL", reservationID).
			Update("released_at", time.Now())
		if upd.Error != nil {
			return database.WrapWriteError("reservation", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return nil
		}
		dec := tx.Model(&serverRow{}).
			Where("id = ? AND used_count > 0", row.ServerID).
			Updates(map[string]any{"used_count": gorm.Expr("used_count - 1"), "updated_at": time.Now()})
		if dec.Error != nil {
			return database.WrapWriteError("server", dec.Error)
		}
		released = true
		return nil
	})
	return released, err
}

func (r *GormRepository) GetReservation(ctx context.Context, id string) (*slot.Reservation, error) {
	var row reservationRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, database.WrapReadError("reservation", err)
	}
	return row.toEntity(), nil
}

func (r *GormRepository) ListServers(ctx context.Context) ([]*slot.Server, error) {
	var rows []serverRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, database.WrapReadError("servers", err)
	}
	out := make([]*slot.Server, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

func (r *GormRepository) UpsertServer(ctx context.Context, s *slot.Server) error {
	row := &serverRow{
		ID:        s.ID,
		Host:      s.Host,
		Port:      s.Port,
		User:      s.User,
		Capacity:  s.Capacity,
		Status:    string(s.Status),
		UpdatedAt: time.Now(),
	}
	// capacity never drops below the slots currently held
	assignments := append(
		clause.AssignmentColumns([]string{"host", "port", "ssh_user", "status", "updated_at"}),
		clause.Assignment{
			Column: clause.Column{Name: "capacity"},
			Value: gorm.Expr("CASE WHEN workspace_servers.used_count > ? THEN workspace_servers.used_count ELSE ? END",
				s.Capacity, s.Capacity),
		},
	)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: assignments,
	}).Create(row).Error
	if err != nil {
		return database.WrapWriteError("server", err)
	}

	var stored serverRow
	if err := r.db.WithContext(ctx).Where("id = ?", s.ID).Take(&stored).Error; err != nil {
		return database.WrapReadError("server", err)
	}
	if stored.Capacity != s.Capacity {
		slog.WarnContext(ctx, "server capacity held at used count",
			"server_id", s.ID, "requested_capacity", s.Capacity, "capacity", stored.Capacity, "used_count", stored.UsedCount)
	}
	return nil
}
