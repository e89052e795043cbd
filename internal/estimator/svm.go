package estimator

import (
	"fmt"
	"os"
	"strings"

	libSvm "github.com/ewalker544/libsvm-go"
	"gonum.org/v1/gonum/mat"
)

// SVM is the kernel support-vector preset, backed by the libsvm-go port.
// The library reads training problems from libsvm-format files, so Fit
// writes the design matrix to a temp file and hands the path over.
type SVM struct {
	C           float64
	Gamma       float64 // 0 means 1/n_features, resolved at fit time
	ClassWeight string  // "", "auto" or "balanced"
	model       *libSvm.Model
	nFeatures   int
}

func NewSVM(classWeight string) *SVM {
	return &SVM{C: 1, ClassWeight: classWeight}
}

// SetParams accepts "C" and "gamma".
func (s *SVM) SetParams(params map[string]float64) error {
	for k, v := range params {
		switch k {
		case "C":
			if v <= 0 {
				return fmt.Errorf("svm: C must be positive, got %v", v)
			}
			s.C = v
		case "gamma":
			if v < 0 {
				return fmt.Errorf("svm: gamma must be non-negative, got %v", v)
			}
			s.Gamma = v
		default:
			return fmt.Errorf("svm: unknown parameter %q", k)
		}
	}
	return nil
}

func (s *SVM) Fit(X *mat.Dense, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	_, c := X.Dims()
	s.nFeatures = c

	param := libSvm.NewParameter()
	param.SvmType = libSvm.C_SVC
	param.KernelType = libSvm.RBF
	param.C = s.C
	param.QuietMode = true
	if s.Gamma > 0 {
		param.Gamma = s.Gamma
	} else {
		param.Gamma = 1 / float64(c)
	}
	if s.ClassWeight == "auto" || s.ClassWeight == "balanced" {
		applyBalancedWeights(param, y)
	}

	path, err := writeSvmProblem(X, y)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	problem, err := libSvm.NewProblem(path, param)
	if err != nil {
		return fmt.Errorf("svm: build problem: %w", err)
	}
	model := libSvm.NewModel(param)
	if err := model.Train(problem); err != nil {
		return fmt.Errorf("svm: train: %w", err)
	}
	s.model = model
	return nil
}

func (s *SVM) Predict(X *mat.Dense) ([]int, error) {
	if s.model == nil {
		return nil, fmt.Errorf("svm estimator is not fitted")
	}
	r, c := X.Dims()
	if c != s.nFeatures {
		return nil, fmt.Errorf("svm: expected %d features, got %d", s.nFeatures, c)
	}
	out := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		x := make(map[int]float64, c)
		for j, v := range row {
			if v != 0 {
				x[j+1] = v
			}
		}
		out[i] = int(s.model.Predict(x))
	}
	return out, nil
}

// applyBalancedWeights sets per-class penalty weights inversely
// proportional to class frequency, normalized so the mean weight is 1.
func applyBalancedWeights(param *libSvm.Parameter, y []int) {
	counts := make(map[int]int)
	var order []int
	for _, label := range y {
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
	}
	n := float64(len(y))
	k := float64(len(order))
	param.NrWeight = len(order)
	param.WeightLabel = make([]int, len(order))
	param.Weight = make([]float64, len(order))
	for i, label := range order {
		param.WeightLabel[i] = label
		param.Weight[i] = n / (k * float64(counts[label]))
	}
}

// writeSvmProblem serializes X and y to a sparse libsvm-format temp file
// (1-based feature indices, zeros omitted). The caller removes the file.
func writeSvmProblem(X *mat.Dense, y []int) (string, error) {
	f, err := os.CreateTemp("", "svm-problem-*.txt")
	if err != nil {
		return "", fmt.Errorf("svm: create problem file: %w", err)
	}

	r, c := X.Dims()
	var sb strings.Builder
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		sb.Reset()
		fmt.Fprintf(&sb, "%d", y[i])
		mat.Row(row, i, X)
		for j, v := range row {
			if v != 0 {
				fmt.Fprintf(&sb, " %d:%g", j+1, v)
			}
		}
		sb.WriteByte('\n')
		if _, err := f.WriteString(sb.String()); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("svm: write problem file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("svm: close problem file: %w", err)
	}
	return f.Name(), nil
}
