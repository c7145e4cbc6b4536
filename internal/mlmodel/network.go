package mlmodel

import (
	"bufio"
	"encoding/gob"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/enterprise/fraudscore/internal/models"
)

const (
	inputSize   = 20
	hidden1Size = 64
	hidden2Size = 32
	outputSize  = 2 // {not-fraud, fraud}

	initSeed = 42
)

// Network is a feed-forward classifier with two ReLU hidden layers and a
// softmax output, operating on the fixed 20-dimensional feature vector.
type Network struct {
	w1, w2, w3 *mat.Dense
	b1, b2, b3 *mat.Dense
}

// NewNetwork builds a freshly initialized network with deterministic
// (seeded) small random weights — used when no persisted model state is
// found at the configured path.
func NewNetwork() *Network {
	rng := rand.New(rand.NewSource(initSeed))
	return &Network{
		w1: randomDense(rng, inputSize, hidden1Size),
		b1: mat.NewDense(1, hidden1Size, nil),
		w2: randomDense(rng, hidden1Size, hidden2Size),
		b2: mat.NewDense(1, hidden2Size, nil),
		w3: randomDense(rng, hidden2Size, outputSize),
		b3: mat.NewDense(1, outputSize, nil),
	}
}

func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	scale := math.Sqrt(2.0 / float64(rows))
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, cols, data)
}

// Forward runs the feature vector through the network and returns the
// fraud-class probability from the softmax output.
func (n *Network) Forward(features models.FeatureVector) float64 {
	x := mat.NewDense(1, inputSize, features[:])

	h1 := denseForward(x, n.w1, n.b1, relu)
	h2 := denseForward(h1, n.w2, n.b2, relu)
	logits := denseForward(h2, n.w3, n.b3, nil)

	probs := softmax(logits)
	return probs[1]
}

func denseForward(x, w, b *mat.Dense, activation func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Mul(x, w)
	out.Add(&out, b)
	if activation != nil {
		out.Apply(func(_, _ int, v float64) float64 { return activation(v) }, &out)
	}
	return &out
}

func relu(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func softmax(logits *mat.Dense) []float64 {
	_, cols := logits.Dims()
	vals := make([]float64, cols)
	maxVal := math.Inf(-1)
	for i := 0; i < cols; i++ {
		v := logits.At(0, i)
		vals[i] = v
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range vals {
		e := math.Exp(v - maxVal)
		vals[i] = e
		sum += e
	}
	for i := range vals {
		vals[i] /= sum
	}
	return vals
}

// gobNetwork is the on-disk representation of a Network's weight state.
type gobNetwork struct {
	W1Data, B1Data []float64
	W2Data, B2Data []float64
	W3Data, B3Data []float64
}

// Save persists the network's weights to path.
func (n *Network) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	g := gobNetwork{
		W1Data: flatten(n.w1), B1Data: flatten(n.b1),
		W2Data: flatten(n.w2), B2Data: flatten(n.b2),
		W3Data: flatten(n.w3), B3Data: flatten(n.b3),
	}
	return gob.NewEncoder(w).Encode(g)
}

// LoadNetwork reads a persisted network from path. Absence of the file is
// not an error at the caller's boundary; callers fall back to NewNetwork.
func LoadNetwork(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var g gobNetwork
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&g); err != nil {
		return nil, err
	}

	return &Network{
		w1: mat.NewDense(inputSize, hidden1Size, g.W1Data),
		b1: mat.NewDense(1, hidden1Size, g.B1Data),
		w2: mat.NewDense(hidden1Size, hidden2Size, g.W2Data),
		b2: mat.NewDense(1, hidden2Size, g.B2Data),
		w3: mat.NewDense(hidden2Size, outputSize, g.W3Data),
		b3: mat.NewDense(1, outputSize, g.B3Data),
	}, nil
}

func flatten(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = m.At(i, j)
		}
	}
	return out
}
