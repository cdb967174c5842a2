package inmemdb

import (
	"sync"

	"github.com/trezcool/mahudhurio/core/attendance"
)

type (
	// DB is a process-local store with the same semantics as the Postgres one. Used by tests and `storage.driver=inmem`.
	DB struct {
		attendance *attendanceTable
	}

	attendanceTable struct {
		records     map[string]*attendance.Record
		byDay       map[dayKey]string // (kind, subject, date) -> record id
		lateReasons map[string]*attendance.LateReason
		schedules   map[string]string // teacher id -> HH:MM
		mutex       sync.RWMutex
	}

	dayKey struct {
		kind      attendance.Kind
		subjectID string
		date      string
	}
)

func Open() *DB {
	return &DB{
		attendance: &attendanceTable{
			records:     make(map[string]*attendance.Record),
			byDay:       make(map[dayKey]string),
			lateReasons: make(map[string]*attendance.LateReason),
			schedules:   make(map[string]string),
		},
	}
}
