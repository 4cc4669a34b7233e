package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM leads":                        "SELECT",
		"  insert into commissions (id) values (1)":   "INSERT",
		"WITH x AS (SELECT 1) UPDATE payouts SET a=1": "SELECT",
		"":                                            "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
