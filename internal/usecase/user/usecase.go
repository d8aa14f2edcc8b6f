package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/investment"
	domain "p2p-lending-backend/internal/domain/user"
	"p2p-lending-backend/pkg/msisdn"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Usecase struct {
	users       domain.Repository
	investments investment.Repository
}

func NewUsecase(users domain.Repository, investments investment.Repository) *Usecase {
	return &Usecase{users: users, investments: investments}
}

func (u *Usecase) Me(ctx context.Context, userID string) (*domain.User, error) {
	usr, err := u.users.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("user not found")
	}
	return usr, err
}

// ProfileInput is a full replacement of the editable profile fields.
type ProfileInput struct {
	UserID string
	// applied only when the profile is first created
	Role        domain.Role
	Name        string
	Email       string
	PhoneNumber string
	Country     string
}

const defaultCountry = "Kenya"

func normalizeProfile(in *ProfileInput) error {
	var fe []apperror.FieldError
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		fe = append(fe, apperror.FieldError{Field: "name", Message: "is required"})
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if validate.Var(in.Email, "required,email,max=191") != nil {
		fe = append(fe, apperror.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	phone, err := msisdn.Normalize(in.PhoneNumber)
	if err != nil {
		fe = append(fe, apperror.FieldError{Field: "phone_number", Message: err.Error()})
	}
	in.PhoneNumber = phone
	in.Country = strings.TrimSpace(in.Country)
	if len(fe) > 0 {
		return apperror.Validation("invalid profile", fe...)
	}
	return nil
}

// clash reports another account already holding the email or phone.
func (u *Usecase) clash(ctx context.Context, in ProfileInput) error {
	other, err := u.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil && other.UserID != in.UserID:
		return apperror.Conflict("email is already registered")
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	}
	other, err = u.users.GetByPhone(ctx, in.PhoneNumber)
	switch {
	case err == nil && other.UserID != in.UserID:
		return apperror.Conflict("phone number is already registered")
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return nil
}

// SaveProfile creates the caller's profile on first use and edits it after.
// created reports which one happened.
func (u *Usecase) SaveProfile(ctx context.Context, in ProfileInput) (usr *domain.User, created bool, err error) {
	if err := normalizeProfile(&in); err != nil {
		return nil, false, err
	}
	if err := u.clash(ctx, in); err != nil {
		return nil, false, err
	}

	usr, err = u.users.GetByUserID(ctx, in.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if in.Country == "" {
			in.Country = defaultCountry
		}
		usr = &domain.User{
			UserID:      in.UserID,
			Name:        in.Name,
			Email:       in.Email,
			PhoneNumber: in.PhoneNumber,
			Country:     in.Country,
			Role:        in.Role,
		}
		err = u.users.Create(ctx, usr)
		created = true
	case err != nil:
		return nil, false, err
	default:
		usr.Name, usr.Email, usr.PhoneNumber = in.Name, in.Email, in.PhoneNumber
		if in.Country != "" {
			usr.Country = in.Country
		}
		err = u.users.Save(ctx, usr)
	}
	if errors.Is(err, domain.ErrDuplicate) {
		// lost a race with another signup
		return nil, false, apperror.Conflict("email or phone number is already registered")
	}
	if err != nil {
		return nil, false, err
	}
	slog.InfoContext(ctx, "user: profile saved", "user_id", usr.UserID, "created", created)
	return usr, created, nil
}

type InvestmentPage struct {
	Results  []investment.Investment `json:"results"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

// Investments lists the user's investments, newest first.
func (u *Usecase) Investments(ctx context.Context, userID string, page, pageSize int) (*InvestmentPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	rows, err := u.investments.ListByInvestor(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []investment.Investment{}
	}
	return &InvestmentPage{Results: rows, Page: page, PageSize: pageSize}, nil
}
