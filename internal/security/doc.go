// Package security derives a posture report from engine settings. It reads
// plain values only and never touches credentials or storage.
package security
