// Package pushtoken keeps a device's push token registered for the signed-in
// user.
//
// The Orchestrator reacts to app lifecycle, connectivity and auth events.
// It asks the Verifier whether the stored token is still good and, when it
// is not, hands off to the Controller, which applies cool-down, failure
// suppression and exponential backoff around the Registrar. The Registrar
// acquires a token from the platform, stores it locally first and then
// reconciles the remote row through an ordered list of write strategies.
//
// None of the event handlers return errors. Failures are logged, recorded
// in Diagnostics and degrade to "notifications may not arrive".
package pushtoken
