package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	validationReasonPrefix = "Validation error: "
	noBrandIDReason        = "Registry did not return a brand identifier"
)

var (
	einPattern     = regexp.MustCompile(`^\d{2}-?\d{7}$`)
	zipcodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

func newProfileValidator() (*validator.Validate, error) {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	if err := validate.RegisterValidation("ein", func(fl validator.FieldLevel) bool {
		return einPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("core: register ein validation: %w", err)
	}
	if err := validate.RegisterValidation("zipcode", func(fl validator.FieldLevel) bool {
		return zipcodePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("core: register zipcode validation: %w", err)
	}
	return validate, nil
}

// ValidateProfile returns a human readable detail for the first invalid
// profile field, or an empty string when the profile is acceptable.
func (s *Service) ValidateProfile(profile Profile) string {
	validate := s.validate
	if validate == nil {
		built, err := newProfileValidator()
		if err != nil {
			return err.Error()
		}
		validate = built
	}
	profile = normalizeProfile(profile)
	err := validate.Struct(profile)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return describeFieldError(fieldErrs[0])
	}
	return err.Error()
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "ein":
		return field + " must be a 9 digit tax id (NN-NNNNNNN)"
	case "e164":
		return field + " must be an E.164 phone number"
	case "zipcode":
		return field + " must be a 5 digit or ZIP+4 postal code"
	case "iso3166_1_alpha2":
		return field + " must be a 2 letter country code"
	case "alpha":
		return field + " must contain letters only"
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func normalizeProfile(profile Profile) Profile {
	return Profile{
		OrganizationName: strings.TrimSpace(profile.OrganizationName),
		ContactEmail:     strings.TrimSpace(profile.ContactEmail),
		EIN:              strings.TrimSpace(profile.EIN),
		Phone:            strings.TrimSpace(profile.Phone),
		Street:           strings.TrimSpace(profile.Street),
		City:             strings.TrimSpace(profile.City),
		State:            strings.ToUpper(strings.TrimSpace(profile.State)),
		PostalCode:       strings.TrimSpace(profile.PostalCode),
		Country:          strings.ToUpper(strings.TrimSpace(profile.Country)),
		Website:          strings.TrimSpace(profile.Website),
		Vertical:         strings.TrimSpace(profile.Vertical),
	}
}

// RegisterBrand validates the tenant profile and submits it as a brand.
// Validation and registry failures are persisted as rejections and are not
// returned as errors; only persistence failures are.
func (s *Service) RegisterBrand(ctx context.Context, req RegisterBrandRequest) (record RegistrationRecord, err error) {
	startedAt := time.Now().UTC()
	tenantID := strings.TrimSpace(req.TenantID)
	fields := map[string]any{
		"tenant_id": tenantID,
		"source":    SourceOperator,
	}
	defer func() {
		fields["registration_status"] = string(record.Status)
		s.observeOperation(ctx, startedAt, "register_brand", err, fields)
		err = s.mapError(err)
	}()

	if s == nil {
		return RegistrationRecord{}, fmt.Errorf("core: service is nil")
	}
	if tenantID == "" {
		return RegistrationRecord{}, fmt.Errorf("core: tenant id is required")
	}
	if s.registry == nil {
		return RegistrationRecord{}, fmt.Errorf("core: registry client is not configured")
	}
	profile := normalizeProfile(req.Profile)
	key := RecordKey{TenantID: tenantID}

	if detail := s.ValidateProfile(profile); detail != "" {
		fields["outcome"] = "invalid_profile"
		return s.persistBrandRejection(ctx, key, strings.TrimSpace(req.PhoneNumber), validationReasonPrefix+detail)
	}

	existing, err := s.GetRegistration(ctx, tenantID)
	if err != nil {
		return RegistrationRecord{}, err
	}
	switch existing.Status {
	case StatusNone, StatusRejected, "":
	case StatusPending:
		if existing.BrandID != "" {
			fields["outcome"] = "already_submitted"
			return existing, nil
		}
	default:
		fields["outcome"] = "already_registered"
		return existing, nil
	}

	submission := s.brandSubmission(profile)
	result, submitErr := s.registry.SubmitBrand(ctx, submission)
	if submitErr != nil {
		fields["outcome"] = "registry_error"
		fields["registry_error"] = submitErr.Error()
		return s.persistBrandRejection(ctx, key, strings.TrimSpace(req.PhoneNumber), s.translate(submitErr))
	}
	brandID := strings.TrimSpace(result.BrandID)
	if brandID == "" {
		fields["outcome"] = "missing_brand_id"
		return s.persistBrandRejection(ctx, key, strings.TrimSpace(req.PhoneNumber), noBrandIDReason)
	}
	fields["brand_id"] = brandID

	now := s.clock()
	firstCheck := now.Add(time.Duration(s.config.Brand.FirstCheckMinutes) * time.Minute)
	record, _, err = s.mutateRecord(ctx, key, SourceOperator, true, func(rec *RegistrationRecord) (bool, error) {
		if err := rec.Restart(now); err != nil {
			return false, err
		}
		rec.BrandID = brandID
		if tcr := strings.TrimSpace(result.TCRBrandID); tcr != "" {
			rec.TCRBrandID = tcr
		}
		if phone := strings.TrimSpace(req.PhoneNumber); phone != "" {
			rec.PhoneNumber = phone
		}
		rec.NextCheckAt = timePtr(firstCheck)
		return true, nil
	})
	if err != nil {
		return record, err
	}
	fields["outcome"] = "submitted"
	return record, nil
}

func (s *Service) persistBrandRejection(
	ctx context.Context,
	key RecordKey,
	phoneNumber string,
	reason string,
) (RegistrationRecord, error) {
	now := s.clock()
	record, _, err := s.mutateRecord(ctx, key, SourceOperator, true, func(rec *RegistrationRecord) (bool, error) {
		if err := rec.TransitionTo(StatusRejected, reason, now); err != nil {
			return false, err
		}
		if phoneNumber != "" && rec.PhoneNumber == "" {
			rec.PhoneNumber = phoneNumber
		}
		rec.NextCheckAt = nil
		return true, nil
	})
	return record, err
}

func (s *Service) brandSubmission(profile Profile) BrandSubmission {
	cfg := s.config
	vertical := profile.Vertical
	if vertical == "" {
		vertical = cfg.Brand.DefaultVertical
	}
	country := profile.Country
	if country == "" {
		country = cfg.Brand.DefaultCountry
	}
	return BrandSubmission{
		EntityType:         cfg.Brand.EntityType,
		DisplayName:        profile.OrganizationName,
		CompanyName:        profile.OrganizationName,
		Email:              profile.ContactEmail,
		Phone:              profile.Phone,
		EIN:                profile.EIN,
		Street:             profile.Street,
		City:               profile.City,
		State:              profile.State,
		PostalCode:         profile.PostalCode,
		Country:            country,
		Website:            profile.Website,
		Vertical:           vertical,
		WebhookURL:         cfg.Webhooks.PrimaryURL,
		WebhookFailoverURL: cfg.Webhooks.FailoverURL,
	}
}
