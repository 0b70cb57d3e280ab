// Package governance implements the administrative half of the certificate
// manager: a single owner (AccessControl) and the signer set with its approval
// threshold (SignerRegistry).
//
// Every privileged mutation goes through AccessControl.Authorize, so ownership
// is the only gate. Mutations return the notification they produced instead
// of broadcasting it; the engine collects them into receipts.
//
// Neither type locks. They are owned by engine.Engine, which serializes all
// access behind a single mutex.
package governance
