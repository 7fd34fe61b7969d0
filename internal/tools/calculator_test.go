package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func calc(t *testing.T, expression string) *Result {
	t.Helper()
	params, _ := json.Marshal(map[string]string{"expression": expression})
	result, err := (&calculatorTool{}).Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute %q: %v", expression, err)
	}
	return result
}

func TestCalculatorEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"1+2", "3"},
		{"2+3*4", "14"},
		{"(2+3)*4", "20"},
		{"10/4", "2.5"},
		{"-3+5", "2"},
		{"--2", "2"},
		{"1.5 * 2", "3"},
	}
	for _, tc := range cases {
		result := calc(t, tc.expr)
		if result.IsError {
			t.Errorf("%q: unexpected error result %q", tc.expr, result.Content)
			continue
		}
		if result.Content != tc.want {
			t.Errorf("%q = %s, want %s", tc.expr, result.Content, tc.want)
		}
	}
}

func TestCalculatorRejectsInput(t *testing.T) {
	for _, expr := range []string{
		"1+x",
		"len(foo)",
		"2^8",
		"1;2",
		"",
		"1+",
		"(1+2",
	} {
		result := calc(t, expr)
		if !result.IsError {
			t.Errorf("%q: want error result, got %q", expr, result.Content)
		}
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	result := calc(t, "1/0")
	if !result.IsError {
		t.Fatalf("want error result, got %q", result.Content)
	}
	result = calc(t, "1/(2-2)")
	if !result.IsError {
		t.Fatalf("nested: want error result, got %q", result.Content)
	}
}

func TestEchoTool(t *testing.T) {
	params, _ := json.Marshal(map[string]string{"text": "hello"})
	result, err := (&echoTool{}).Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError || result.Content != "hello" {
		t.Errorf("result = %+v", result)
	}
}

func TestKindsCoverAllTools(t *testing.T) {
	for _, kind := range Kinds() {
		tool := forKind(kind)
		if tool == nil {
			t.Fatalf("no tool for kind %s", kind)
		}
		if tool.Name() != string(kind) {
			t.Errorf("tool name %q != kind %q", tool.Name(), kind)
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			t.Errorf("%s: schema not valid JSON: %v", kind, err)
		}
	}
}
