package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	opProductListUpsert   = "product_list.upsert"
	maxProductListOptions = 500
)

var productListKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// ProductListServiceDeps bundles the taxonomy collaborators.
type ProductListServiceDeps struct {
	Lists   repositories.ProductListRepository
	Metrics MutationRecorder
	Clock   func() time.Time
}

type productListService struct {
	lists   repositories.ProductListRepository
	metrics MutationRecorder
	clock   func() time.Time
}

// NewProductListService wires the taxonomy service.
func NewProductListService(deps ProductListServiceDeps) (ProductListService, error) {
	if deps.Lists == nil {
		return nil, errors.New("product list service: repository is required")
	}
	return &productListService{
		lists:   deps.Lists,
		metrics: deps.Metrics,
		clock:   utcClock(deps.Clock),
	}, nil
}

func (s *productListService) GetList(ctx context.Context, key string) (domain.ProductList, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ProductList{}, fmt.Errorf("%w: list key is required", ErrProductInvalid)
	}
	list, err := s.lists.Get(ctx, key)
	if err != nil {
		return domain.ProductList{}, mapRepositoryError(err)
	}
	return list, nil
}

func (s *productListService) ListLists(ctx context.Context) ([]domain.ProductList, error) {
	lists, err := s.lists.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return lists, nil
}

// UpsertList replaces the options of the list. Options keep their order; a blank value takes the
// label, and duplicate values are rejected.
func (s *productListService) UpsertList(ctx context.Context, cmd UpsertProductListCommand) (list domain.ProductList, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordMutation(ctx, opProductListUpsert, err)
		}
	}()

	key := strings.TrimSpace(cmd.Key)
	if !productListKeyPattern.MatchString(key) {
		return domain.ProductList{}, fmt.Errorf("%w: invalid list key %q", ErrProductInvalid, cmd.Key)
	}
	if len(cmd.Options) > maxProductListOptions {
		return domain.ProductList{}, fmt.Errorf("%w: at most %d options per list", ErrProductInvalid, maxProductListOptions)
	}
	options := make([]domain.ProductListOption, 0, len(cmd.Options))
	seen := make(map[string]struct{}, len(cmd.Options))
	for i, opt := range cmd.Options {
		label := domain.NormalizeName(sanitizeText(opt.Label))
		if label == "" {
			return domain.ProductList{}, fmt.Errorf("%w: option %d has no label", ErrProductInvalid, i)
		}
		value := strings.TrimSpace(opt.Value)
		if value == "" {
			value = label
		}
		if _, dup := seen[value]; dup {
			return domain.ProductList{}, fmt.Errorf("%w: duplicate option value %q", ErrProductInvalid, value)
		}
		seen[value] = struct{}{}
		options = append(options, domain.ProductListOption{Label: label, Value: value})
	}
	name := sanitizeText(cmd.Name)
	if name == "" {
		name = key
	}
	list = domain.ProductList{Key: key, Name: name, Options: options, UpdatedAt: s.clock()}
	if err := s.lists.Save(ctx, list); err != nil {
		return domain.ProductList{}, mapRepositoryError(err)
	}
	return list, nil
}
