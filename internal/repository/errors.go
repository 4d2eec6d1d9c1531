// Package repository holds the MySQL data access for the catalog and for
// bookings. Sentinel errors let the service layer tell a lost race from a
// missing row without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrSeatTaken is returned by BookingRepo.Create when another live booking
// already holds one of the seats. The unique index on booking_seats is the
// arbiter; callers re-query to learn which seats collided.
var ErrSeatTaken = errors.New("seat already booked")

// ErrStateChanged is returned by conditional updates that matched no row
// because the booking moved on since it was read.
var ErrStateChanged = errors.New("booking state changed")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
