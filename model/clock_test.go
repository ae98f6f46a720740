package model

import (
	"encoding/json"
	"testing"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ClockTime
		wantErr bool
	}{
		{name: "ok", in: "1230", want: ClockTime{Hour: 12, Minute: 30}},
		{name: "midnight", in: "0000", want: ClockTime{}},
		{name: "last minute", in: "2359", want: ClockTime{Hour: 23, Minute: 59}},
		{name: "hour out of range", in: "2400", wantErr: true},
		{name: "minute out of range", in: "1260", wantErr: true},
		{name: "too short", in: "930", wantErr: true},
		{name: "not numeric", in: "12a0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClockTime() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseClockTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullClockTime_JSON(t *testing.T) {
	type wrapper struct {
		Start NullClockTime `json:"start"`
	}
	raw, err := json.Marshal(wrapper{Start: NewNullClockTime(NewClockTime(7, 5))})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"start":"0705"}` {
		t.Errorf("marshal = %s", raw)
	}
	var decoded wrapper
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Start.Valid || decoded.Start.ClockTime != NewClockTime(7, 5) {
		t.Errorf("round trip = %+v", decoded.Start)
	}
	if err := json.Unmarshal([]byte(`{"start":null}`), &decoded); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if decoded.Start.Valid {
		t.Error("null should decode as invalid")
	}
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Date Date `json:"date"`
	}
	raw, err := json.Marshal(wrapper{Date: NewDate(2026, 12, 31)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"date":"2026-12-31"}` {
		t.Errorf("marshal = %s", raw)
	}
	var decoded wrapper
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Date != NewDate(2026, 12, 31) {
		t.Errorf("round trip = %+v", decoded.Date)
	}
}

func TestDate_AddDays(t *testing.T) {
	if got := NewDate(2026, 12, 31).AddDays(1); got != NewDate(2027, 1, 1) {
		t.Errorf("AddDays() = %v", got)
	}
	if got := NewDate(2024, 2, 28).AddDays(1); got != NewDate(2024, 2, 29) {
		t.Errorf("AddDays() leap = %v", got)
	}
}
