// Package classify turns a rendered creator profile into a typed LinkBundle and a
// locale signal, and decides whether the creator is accepted. All keyword tables
// and exclusion lists are supplied through Rules and Policy.
package classify
