package environment_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/bdobrica/catalogchat/common/environment"
)

func TestEnv_Name(t *testing.T) {
	if got := environment.New("catalogchat_").Name("DB"); got != "CATALOGCHAT_DB" {
		t.Errorf("got %q", got)
	}
	if got := environment.New("").Name("DB"); got != "DB" {
		t.Errorf("got %q", got)
	}
}

func TestEnv_StringOr(t *testing.T) {
	env := environment.New("TESTCC")
	t.Setenv("TESTCC_MODEL", "gpt-4o-mini")
	if got := env.StringOr("MODEL", "x"); got != "gpt-4o-mini" {
		t.Errorf("got %q", got)
	}
	if got := env.StringOr("MISSING", "x"); got != "x" {
		t.Errorf("got %q", got)
	}
}

func TestEnv_Required(t *testing.T) {
	env := environment.New("TESTCC")
	t.Setenv("TESTCC_KEY", "v")
	if v, err := env.Required("KEY"); err != nil || v != "v" {
		t.Fatalf("Required: %q, %v", v, err)
	}
	if _, err := env.Required("NOPE"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestEnv_Typed(t *testing.T) {
	env := environment.New("TESTCC")
	t.Setenv("TESTCC_BOOL", "true")
	t.Setenv("TESTCC_INT", "42")
	t.Setenv("TESTCC_BADINT", "forty")
	t.Setenv("TESTCC_FLOAT", "0.75")
	t.Setenv("TESTCC_DUR", "8s")
	t.Setenv("TESTCC_LIST", " a, ,b ,c")

	if !env.BoolOr("BOOL", false) {
		t.Error("BoolOr")
	}
	if env.IntOr("INT", 0) != 42 {
		t.Error("IntOr")
	}
	if env.IntOr("BADINT", 7) != 7 {
		t.Error("IntOr must fall back on parse errors")
	}
	if env.FloatOr("FLOAT", 0) != 0.75 {
		t.Error("FloatOr")
	}
	if env.DurationOr("DUR", time.Second) != 8*time.Second {
		t.Error("DurationOr")
	}
	if got := env.StringSliceOr("LIST", nil); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("StringSliceOr: %v", got)
	}
}
