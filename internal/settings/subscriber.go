package settings

import (
	"errors"

	"github.com/eugenenazirov/billing-settings/internal/config"
)

// ResolveSubscriberModel returns the model billed as the subscriber.
//
// Without SubscriberModel the registry's user model is used. A custom model is
// looked up by "app_label.model_name" and additionally requires a callable
// subscriber request hook, supplied by option or by
// SubscriberModelRequestCallback. Either model must expose an email attribute.
func ResolveSubscriberModel(cfg config.BillingConfig, reg *Registry, opts ...Option) (Model, error) {
	if cfg.SubscriberModel == "" {
		model := reg.UserModel()
		if !model.HasAttr("email") {
			return Model{}, improperlyConfigured(settingSubscriberModel, nil, "The customer user model must have an email attribute.")
		}
		return model, nil
	}

	model, err := reg.GetModel(cfg.SubscriberModel)
	switch {
	case errors.Is(err, ErrInvalidModelLabel):
		return Model{}, improperlyConfigured(settingSubscriberModel, err,
			"%s must be of the form 'app_label.model_name'.", settingSubscriberModel)
	case errors.Is(err, ErrModelNotRegistered):
		return Model{}, improperlyConfigured(settingSubscriberModel, err,
			"%s refers to model '%s' that has not been installed.", settingSubscriberModel, cfg.SubscriberModel)
	case err != nil:
		return Model{}, improperlyConfigured(settingSubscriberModel, err, "%s could not be resolved.", settingSubscriberModel)
	}

	if !model.HasAttr("email") {
		return Model{}, improperlyConfigured(settingSubscriberModel, nil, "%s must have an email attribute.", settingSubscriberModel)
	}

	// Custom subscriber model detected. Make sure the request hook is configured.
	_, configured, err := resolveSubscriberRequest(cfg, reg, newOptions(opts))
	if err != nil {
		return Model{}, err
	}
	if !configured {
		return Model{}, improperlyConfigured(settingSubscriberRequest, nil,
			"%s must be implemented if a %s is defined.", settingSubscriberRequest, settingSubscriberModel)
	}

	return model, nil
}
