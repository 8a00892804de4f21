package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/product/domain"
	"github.com/smallbiznis/bizledger/pkg/db"
	"github.com/smallbiznis/bizledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Product, error) {
	filter := domain.ListRequest{
		Code:   strings.TrimSpace(req.Code),
		Active: req.Active,
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Product, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Product{}, domain.ErrInvalidCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}
	if req.UnitPrice.IsNegative() || !money.FitsScale(req.UnitPrice) {
		return domain.Product{}, domain.ErrInvalidUnitPrice
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(decimal.NewFromInt(100)) || !money.FitsScale(req.TaxRate) {
		return domain.Product{}, domain.ErrInvalidTaxRate
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	p := domain.Product{
		ID:          s.genID.Generate(),
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		UnitPrice:   req.UnitPrice,
		TaxRate:     req.TaxRate,
		Active:      active,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for k, v := range req.Metadata {
		p.Metadata[k] = v
	}

	if err := s.repo.Create(ctx, s.db, &p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrDuplicateCode
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || productID == 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if p == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *p, nil
}
