// Package settings resolves the billing section of the configuration into an
// immutable Settings value: the subscriber model, the request and trial-period
// hooks, the plan choices and plan list, currency choices and the webhook URL
// pattern.
//
// Resolution runs once at start-up. Every failure is reported as an
// *ImproperlyConfiguredError matching ErrImproperlyConfigured; the process is
// expected to abort and the operator to fix the configuration.
//
// Hooks and models are looked up in a Registry populated by the host
// application, keyed by "app_label.model_name" for models and by dotted
// "module.attr" paths for functions.
package settings
