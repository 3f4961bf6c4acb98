package rules

import "testing"

func TestCheckLogic(t *testing.T) {
	testCases := []struct {
		name    string
		expr    string
		n       int
		wantErr bool
	}{
		{"Word operators", "c1 AND (c2 OR NOT c3)", 3, false},
		{"Symbol operators", "c1 && !c2", 2, false},
		{"Long variable names", "condition1 or condition2", 2, false},
		{"Unknown variable", "c1 AND c4", 3, true},
		{"Not boolean", "1 + 2", 0, true},
		{"Syntax error", "c1 AND", 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckLogic(tc.expr, tc.n)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckLogic(%q) error = %v, wantErr %v", tc.expr, err, tc.wantErr)
			}
		})
	}
}

func TestAdvisoryProgramEval(t *testing.T) {
	p, err := compileLogic("c1 AND (c2 OR NOT c3)", 3)
	if err != nil {
		t.Fatalf("compileLogic() failed: %v", err)
	}

	testCases := []struct {
		results []bool
		want    bool
	}{
		{[]bool{true, true, true}, true},
		{[]bool{true, false, false}, true},
		{[]bool{true, false, true}, false},
		{[]bool{false, true, false}, false},
	}
	for _, tc := range testCases {
		got, err := p.eval(tc.results)
		if err != nil {
			t.Fatalf("eval(%v) failed: %v", tc.results, err)
		}
		if got != tc.want {
			t.Errorf("eval(%v) = %v, want %v", tc.results, got, tc.want)
		}
	}
}
