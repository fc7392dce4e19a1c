package finance

// =============================================================================
// PERIOD - Half-open time interval [start, start+length)
// =============================================================================

// Period is an immutable half-open interval. Billing periods, margin
// periods and overdue spans are all expressed as Periods.
type Period struct {
	start  Timestamp
	length Duration
}

// PeriodFromLength builds [start, start+length).
func PeriodFromLength(start Timestamp, length Duration) Period {
	// Till must stay representable.
	start.Add(length)
	return Period{start: start, length: length}
}

// PeriodFromTill builds [start, till). Panics if till is before start.
func PeriodFromTill(start, till Timestamp) Period {
	return Period{start: start, length: Between(start, till)}
}

// PeriodTillLength builds the period of the given length ending at till.
func PeriodTillLength(till Timestamp, length Duration) Period {
	return Period{start: till.Sub(length), length: length}
}

func (p Period) Start() Timestamp  { return p.start }
func (p Period) Length() Duration  { return p.length }
func (p Period) Till() Timestamp   { return p.start.Add(p.length) }
func (p Period) IsEmpty() bool     { return p.length == 0 }

// Contains reports whether t is within [start, till).
func (p Period) Contains(t Timestamp) bool {
	return p.start <= t && t < p.Till()
}

// Clamp moves t within [start, till].
func (p Period) Clamp(t Timestamp) Timestamp {
	return t.Clamp(p.start, p.Till())
}

// Next rolls the period forward: the next period starts where this one
// ends and spans the given length.
func (p Period) Next(length Duration) Period {
	return PeriodFromLength(p.Till(), length)
}

// ShiftStart moves the start forward by delta keeping Till unchanged.
func (p Period) ShiftStart(delta Duration) Period {
	return Period{start: p.start.Add(delta), length: p.length.Sub(delta)}
}

func (p Period) String() string {
	return "[" + p.start.String() + ", " + p.Till().String() + ")"
}
