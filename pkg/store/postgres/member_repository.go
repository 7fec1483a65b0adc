package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/commutealarm/commutealarm/pkg/model"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrPlaceNotFound  = errors.New("place not found")
)

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.Member) error {
	return conn(ctx, r.db).Create(member).Error
}

// GetIfExists returns ErrMemberNotFound for unknown or withdrawn members.
func (r *MemberRepository) GetIfExists(ctx context.Context, id int64) (*model.Member, error) {
	var member model.Member
	err := conn(ctx, r.db).First(&member, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

type PlaceRepository struct {
	db *gorm.DB
}

func NewPlaceRepository(db *gorm.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

func (r *PlaceRepository) Create(ctx context.Context, place *model.Place) error {
	return conn(ctx, r.db).Create(place).Error
}

func (r *PlaceRepository) GetByID(ctx context.Context, id int64) (*model.Place, error) {
	var place model.Place
	err := conn(ctx, r.db).First(&place, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlaceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &place, nil
}

func (r *PlaceRepository) Delete(ctx context.Context, id int64) error {
	return conn(ctx, r.db).Delete(&model.Place{}, "id = ?", id).Error
}
