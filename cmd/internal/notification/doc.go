// Package notification records notification events and pushes them to live channels.
//
// Dispatch always persists before it attempts delivery. Delivery is a single
// best-effort push; a recipient without a live channel finds the event by listing.
package notification
