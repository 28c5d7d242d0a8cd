// Package device holds the SOUNDBOKS domain model: the speaker identity,
// its stored configuration and the GATT characteristics each setting is
// written to, plus the byte encodings the speaker firmware expects.
//
// Nothing in this package talks to a radio. Sessions, pooling and discovery
// live in sibling packages and share the types and errors declared here.
package device
