// Package fserr specifically handles filesystem errors.
//
// It turns the errors raised while walking and moving the image tree into
// user-friendly messages (e.g. converting a missing cluster directory into
// a "Not Found" error) and maps the sensor matcher's sentinel errors onto
// HTTP statuses.
package fserr
