package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
	"github.com/mmeshcher/fcoaccruals/internal/repository"
)

// ResolveContext определяет логин SAP пользователя по кадровым данным и, для ответственных за МВЗ,
// список действующих МВЗ. Результат сохраняется для последующих действий.
func (s *Service) ResolveContext(ctx context.Context, id model.Identity) (*model.UserContext, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrContextMissing)
	}

	master, err := s.gateway.FetchUserMasterData(ctx, strings.ToLower(id.UserID))
	if err != nil {
		if errors.Is(err, procurement.ErrNotFound) {
			return nil, fmt.Errorf("%w: no master data for %s", ErrContextMissing, id.UserID)
		}
		return nil, err
	}
	if master.Bname == "" {
		return nil, fmt.Errorf("%w: no sap user for %s", ErrContextMissing, id.UserID)
	}

	uc := &model.UserContext{
		UserID:     id.UserID,
		SapUser:    master.Bname,
		FamilyName: master.FamilyName,
		GivenName:  master.GivenName,
	}

	if id.HasRole(model.RoleCostCenterResponsible) {
		costCenters, err := s.gateway.FetchCostCenters(ctx, master.Bname, s.now())
		if err != nil {
			return nil, err
		}
		for _, cc := range costCenters {
			if cc.CostCenter != "" {
				uc.CostCenters = append(uc.CostCenters, cc.CostCenter)
			}
		}
	}

	if err := s.repo.SaveContext(ctx, uc); err != nil {
		return nil, fmt.Errorf("save context: %w", err)
	}

	return uc, nil
}

// userContext возвращает сохранённый контекст или определяет его заново.
func (s *Service) userContext(ctx context.Context, id model.Identity, role model.Role) (*model.UserContext, error) {
	uc, err := s.repo.FindContext(ctx, id.UserID)
	if errors.Is(err, repository.ErrContextNotFound) {
		uc, err = s.ResolveContext(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if err := checkContext(uc, role); err != nil {
		return nil, err
	}
	return uc, nil
}

func checkContext(uc *model.UserContext, role model.Role) error {
	if uc.SapUser == "" {
		return fmt.Errorf("%w: no sap user for %s", ErrContextMissing, uc.UserID)
	}
	if role == model.RoleCostCenterResponsible && len(uc.CostCenters) == 0 {
		return fmt.Errorf("%w: %s owns no cost centers", ErrContextMissing, uc.UserID)
	}
	return nil
}
