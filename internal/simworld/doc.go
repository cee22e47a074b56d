// Package simworld folds independently arriving vehicle telemetry (chassis,
// localization, planning, perception and monitor messages) into one
// display-oriented world snapshot for the frontend renderer.
//
// Each message kind has its own handler and owns a disjoint part of the
// snapshot, so the order in which kinds arrive does not matter. The Service
// serialises updates and hands out deep copies to readers.
package simworld
