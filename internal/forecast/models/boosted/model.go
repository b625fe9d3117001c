// Package boosted wraps the boo gradient-boosted tree classifier as a point
// forecaster. The trees classify the direction of the next step from recent
// step deltas; the class probability is scaled by the series' typical move
// to produce a value forecast.
package boosted

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"stackcast/internal/forecast"
	"stackcast/internal/timeseries"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

type TrainOptions struct {
	Lags         int
	Rounds       int
	LearningRate float64
	MaxDepth     int
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Lags:         6,
		Rounds:       40,
		LearningRate: 0.08,
		MaxDepth:     4,
	}
}

type artifact struct {
	Lags        int       `json:"lags"`
	AvgAbsDelta float64   `json:"avg_abs_delta"`
	TailValues  []float64 `json:"tail_values"`
	ModelText   string    `json:"model_text"`
}

type Model struct {
	lags        int
	avgAbsDelta float64
	tailValues  []float64
	boost       *boo.MultiClass
}

func Train(series *timeseries.Series, opts TrainOptions) (*Model, error) {
	if opts.Lags <= 0 {
		opts.Lags = DefaultTrainOptions().Lags
	}
	if opts.Rounds <= 0 {
		opts.Rounds = DefaultTrainOptions().Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultTrainOptions().MaxDepth
	}
	if series == nil || series.Len() < opts.Lags+10 {
		return nil, errors.New("insufficient data points for lag features")
	}

	y := series.Values
	deltas := make([]float64, len(y)-1)
	sumAbs := 0.0
	for i := 1; i < len(y); i++ {
		deltas[i-1] = y[i] - y[i-1]
		sumAbs += math.Abs(deltas[i-1])
	}
	avgAbs := sumAbs / float64(len(deltas))
	if avgAbs == 0 {
		return nil, errors.New("series is constant, nothing to classify")
	}

	samples := make([][]float64, 0, len(deltas)-opts.Lags)
	labels := make([]int, 0, len(deltas)-opts.Lags)
	classSet := make(map[int]struct{}, 2)
	for t := opts.Lags; t < len(deltas); t++ {
		feat := make([]float64, opts.Lags)
		for i := 0; i < opts.Lags; i++ {
			feat[i] = deltas[t-opts.Lags+i] / avgAbs
		}
		label := 0
		if deltas[t] > 0 {
			label = 1
		}
		samples = append(samples, feat)
		labels = append(labels, label)
		classSet[label] = struct{}{}
	}
	if len(classSet) < 2 {
		return nil, errors.New("direction classifier requires both up and down moves")
	}

	featureNames := make([]string, opts.Lags)
	for i := range featureNames {
		featureNames[i] = "d"
	}

	o := boo.DefaultXOptions()
	o.Rounds = opts.Rounds
	o.LearningRate = opts.LearningRate
	o.MaxDepth = opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	data := &utils.DataBunch{
		Data:   samples,
		Labels: labels,
		Keys:   featureNames,
	}
	model := boo.NewMultiClass(data, o)
	if model == nil {
		return nil, errors.New("failed to train boosted direction model")
	}

	return &Model{
		lags:        opts.Lags,
		avgAbsDelta: avgAbs,
		tailValues:  series.Tail(opts.Lags + 1),
		boost:       model,
	}, nil
}

// Forecast walks the horizon one step at a time: each step's up-probability
// is mapped to an expected move of (2p-1)*avgAbsDelta and appended to the
// working tail so later steps see the predicted path.
func (m *Model) Forecast(horizon int) ([]float64, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	if horizon < 1 {
		return nil, errors.New("horizon must be at least 1")
	}
	values := append([]float64(nil), m.tailValues...)
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		feat := make([]float64, m.lags)
		for i := 0; i < m.lags; i++ {
			feat[i] = (values[len(values)-m.lags+i] - values[len(values)-m.lags+i-1]) / m.avgAbsDelta
		}
		p := m.probUp(feat)
		next := values[len(values)-1] + (2*p-1)*m.avgAbsDelta
		out[h] = next
		values = append(values, next)
	}
	return out, nil
}

func (m *Model) probUp(sample []float64) float64 {
	probs := m.boost.PredictSingle(sample)
	labels := m.boost.ClassLabels()
	for i := range labels {
		if labels[i] == 1 {
			return forecast.Clamp(probs[i], 0, 1)
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return forecast.Clamp(probs[len(probs)-1], 0, 1)
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &buf); err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		Lags:        m.lags,
		AvgAbsDelta: m.avgAbsDelta,
		TailValues:  m.tailValues,
		ModelText:   buf.String(),
	})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.Lags <= 0 || a.AvgAbsDelta <= 0 || len(a.TailValues) < a.Lags+1 {
		return nil, errors.New("invalid artifact")
	}
	reader := bufio.NewReader(bytes.NewReader([]byte(a.ModelText)))
	model, err := boo.UnJSONMultiClass(reader)
	if err != nil {
		return nil, err
	}
	return &Model{
		lags:        a.Lags,
		avgAbsDelta: a.AvgAbsDelta,
		tailValues:  a.TailValues,
		boost:       model,
	}, nil
}
