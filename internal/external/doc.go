// SPDX-License-Identifier: MPL-2.0

// Package external decides which module requests are kept out of the bundle
// and resolves each external to the URL its @require line points at.
//
// A Coordinator lives for one build. Resolutions run concurrently and are
// tracked until Settle returns, so a header is never rendered while a lookup
// is still in flight.
package external
