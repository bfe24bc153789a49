package sqlstore

import (
	"context"
	"errors"

	"poll-service/internal/models"
	"poll-service/internal/poll"

	"gorm.io/gorm"
)

// PollRepository persists polls through gorm (postgres, mysql or sqlite).
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db}
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *PollRepository) Load(ctx context.Context) ([]poll.Poll, error) {
	var records []models.PollRecord
	err := r.db.WithContext(ctx).
		Preload("Options", orderedOptions).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(records), nil
}

func (r *PollRepository) Append(ctx context.Context, p *poll.Poll) error {
	record := fromDomain(p)
	return r.db.WithContext(ctx).Create(&record).Error
}

// UpdatePoll loads the poll, applies mutate and writes back the fields it changed, all in
// one transaction. Mutators may change vote counts and the closed flag; option sets are
// fixed at creation.
func (r *PollRepository) UpdatePoll(ctx context.Context, id string, mutate poll.Mutator) (*poll.Poll, error) {
	var updated *poll.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PollRecord
		if err := tx.Preload("Options", orderedOptions).Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return poll.ErrPollNotFound
			}
			return err
		}

		before := toDomain(record)
		p := before.Clone()
		if err := mutate(p); err != nil {
			return err
		}
		if len(p.Options) != len(before.Options) {
			return errors.New("option set of a poll cannot change")
		}

		if p.Closed != before.Closed {
			if err := tx.Model(&models.PollRecord{}).Where("id = ?", id).Update("closed", p.Closed).Error; err != nil {
				return err
			}
		}
		for i := range p.Options {
			if p.Options[i].Votes == before.Options[i].Votes {
				continue
			}
			err := tx.Model(&models.OptionRecord{}).
				Where("poll_id = ? AND position = ?", id, i).
				Update("votes", p.Options[i].Votes).Error
			if err != nil {
				return err
			}
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PollRepository) Get(ctx context.Context, id string) (*poll.Poll, error) {
	var record models.PollRecord
	err := r.db.WithContext(ctx).Preload("Options", orderedOptions).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, poll.ErrPollNotFound
		}
		return nil, err
	}
	return toDomain(record), nil
}

func (r *PollRepository) ListByOwner(ctx context.Context, owner string) ([]poll.Poll, error) {
	var records []models.PollRecord
	err := r.db.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("teacher_username = ?", owner).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(records), nil
}

func fromDomain(p *poll.Poll) models.PollRecord {
	record := models.PollRecord{
		ID:              p.ID,
		Question:        p.Question,
		Timer:           p.Timer,
		TeacherUsername: p.Owner,
		Closed:          p.Closed,
		CreatedAt:       p.CreatedAt,
		Options:         make([]models.OptionRecord, len(p.Options)),
	}
	for i, opt := range p.Options {
		record.Options[i] = models.OptionRecord{
			PollID:   p.ID,
			Position: i,
			OptionID: opt.ID,
			Text:     opt.Text,
			Correct:  opt.Correct,
			Votes:    opt.Votes,
		}
	}
	return record
}

func toDomain(record models.PollRecord) *poll.Poll {
	p := &poll.Poll{
		ID:        record.ID,
		Question:  record.Question,
		Timer:     record.Timer,
		Owner:     record.TeacherUsername,
		Closed:    record.Closed,
		CreatedAt: record.CreatedAt.UTC(),
		Options:   make([]poll.Option, len(record.Options)),
	}
	for i, opt := range record.Options {
		p.Options[i] = poll.Option{
			ID:      opt.OptionID,
			Text:    opt.Text,
			Correct: opt.Correct,
			Votes:   opt.Votes,
		}
	}
	return p
}

func toDomainList(records []models.PollRecord) []poll.Poll {
	out := make([]poll.Poll, 0, len(records))
	for _, record := range records {
		out = append(out, *toDomain(record))
	}
	return out
}
