package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/featureflags"
)

// FeatureFlags reads and updates runtime switches. *featureflags.Service
// implements it.
type FeatureFlags interface {
	IsEnabled(ctx context.Context, key string) bool
	GetAllFlags(ctx context.Context) map[string]*featureflags.Flag
	SetFlags(ctx context.Context, values map[string]interface{}) ([]*featureflags.Flag, error)
}

// offlineRequested reports whether the request asked for stored data or the
// offline_only switch forces it.
func offlineRequested(ctx context.Context, flags FeatureFlags, requested bool) bool {
	return requested || flags.IsEnabled(ctx, featureflags.FlagOfflineOnly)
}

// ListFlags handles GET /v1/admin/flags - the current runtime switches.
func (h *AdminHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	flags := featureflags.Sorted(h.flags.GetAllFlags(r.Context()))
	response.JSON(w, r, http.StatusOK, flagList(flags))
}

// UpdateFlags handles PATCH /v1/admin/flags - switch flags on or off.
func (h *AdminHandler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
	var input models.FeatureFlagUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, r, "invalid request body", validationErrors(err))
		return
	}

	values := make(map[string]interface{}, len(input.Flags))
	for k, v := range input.Flags {
		values[k] = v
	}

	stored, err := h.flags.SetFlags(r.Context(), values)
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag), errors.Is(err, featureflags.ErrInvalidValue):
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "flags", Message: err.Error()}})
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	event := h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Str("reason", input.Reason)
	for _, f := range stored {
		event = event.Bool(f.Key, f.BoolValue(false))
	}
	event.Msg("feature flags updated")

	response.JSON(w, r, http.StatusOK, flagList(featureflags.Sorted(h.flags.GetAllFlags(r.Context()))))
}

func flagList(flags []*featureflags.Flag) models.FeatureFlagList {
	out := models.FeatureFlagList{Items: make([]models.FeatureFlag, 0, len(flags))}
	for _, f := range flags {
		out.Items = append(out.Items, models.FeatureFlag{
			Key:       f.Key,
			Enabled:   f.BoolValue(false),
			UpdatedAt: models.NewTimestamp(f.UpdatedAt),
		})
	}
	return out
}
