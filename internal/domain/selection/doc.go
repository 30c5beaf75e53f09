// Package selection is the public API over both selection backends.
//
// Incoming selections are classified once into tagged Items (handle, file
// or entry). A batch made only of valid handles is persisted by the native
// backend; anything else, including a mix, becomes a transient session.
//
// Key lifecycle:
//
//	unregistered -> Add -> native-handle       -> Remove -> unregistered
//	                    -> transient (active)  -> expire -> transient (expired) -> Remove -> unregistered
//
// Lookups resolve ownership in a fixed order: registry, then live transient
// sessions, then transient tombstones. Every operation other than Add's
// input validation reports failures through its result's Reason.
package selection
