// Package domain models balloon telemetry, weather payloads and the combined
// response served to dashboard clients.
//
// # Data Sources
//
// Balloon positions come from hourly telemetry snapshots published as
// 00.json (latest) through 23.json (23 hours ago). Each snapshot is a JSON
// array of [lat, lon, alt] triples. The feed is known to emit bare NaN and
// Infinity tokens, which are not valid JSON; [Decode] accepts them and
// [Sanitize] turns them into null.
//
// Weather is a single JSON object for a fixed location. It is passed through
// after sanitizing and is otherwise opaque to this package.
//
// # Balloon Records
//
// A record's ID is its 1-based position in the snapshot array. IDs are not
// stable across snapshots: the same ID in 00.json and 01.json may refer to
// different balloons. Elements that are not three-element arrays are dropped.
// A null coordinate is written as the string "N/A" ([MissingCoordinate]).
//
// Historical records carry hours_ago; current records omit it.
//
// # Values
//
// [Value] is an ordered JSON tree. Object member order is preserved end to
// end so responses keep the upstream key order.
package domain
