package csv

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
	tsio "github.com/hed1ad/tsanomaly/pkg/io"
)

func TestReaderRead(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    []Option
		want    []float64
		wantErr error
	}{
		{
			name:  "first column with header",
			input: "value\n1\n2.5\n-3\n",
			want:  []float64{1, 2.5, -3},
		},
		{
			name:  "named column",
			input: "ts,cpu,mem\n1,10,100\n2,11,101\n3,50,99\n",
			opts:  []Option{WithColumn("cpu")},
			want:  []float64{10, 11, 50},
		},
		{
			name:  "column index without header",
			input: "1,10\n2,20\n",
			opts:  []Option{WithHeader(false), WithColumnIndex(1)},
			want:  []float64{10, 20},
		},
		{
			name:  "surrounding spaces",
			input: "v\n 4 \n5\n",
			want:  []float64{4, 5},
		},
		{
			name:  "header only",
			input: "value\n",
			want:  nil,
		},
		{
			name:    "missing column",
			input:   "a,b\n1,2\n",
			opts:    []Option{WithColumn("c")},
			wantErr: ErrColumnNotFound,
		},
		{
			name:    "NaN rejected",
			input:   "v\n1\nNaN\n",
			wantErr: tsio.ErrNonFinite,
		},
		{
			name:    "Inf rejected",
			input:   "v\n+Inf\n",
			wantErr: tsio.ErrNonFinite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewStreamReader(strings.NewReader(tt.input), tt.opts...)
			if err != nil {
				require.NotNil(t, tt.wantErr, "unexpected error: %v", err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			series, err := r.Read()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, series)
		})
	}
}

func TestReaderMalformedRow(t *testing.T) {
	r, err := NewStreamReader(strings.NewReader("v\n1\nabc\n3\n"))
	require.NoError(t, err)

	_, err = r.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
}

func TestReaderShortRow(t *testing.T) {
	r, err := NewStreamReader(strings.NewReader("a,b\n1,2\n3\n"), WithColumn("b"))
	require.NoError(t, err)

	_, err = r.Read()
	assert.Error(t, err)
}

func TestNewReaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte("value\n1\n2\n3\n"), 0o600))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"value"}, r.Headers())
	series, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, series)

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestReaderStream(t *testing.T) {
	r, err := NewStreamReader(strings.NewReader("v\n1\n2\n3\n"))
	require.NoError(t, err)

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var got []float64
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []float64{1, 2, 3}, got)
	assert.NoError(t, r.Err())
}

func TestReaderStreamStopsOnBadRow(t *testing.T) {
	r, err := NewStreamReader(strings.NewReader("v\n1\nInf\n3\n"))
	require.NoError(t, err)

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var got []float64
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []float64{1}, got)
	assert.ErrorIs(t, r.Err(), tsio.ErrNonFinite)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	records := []detectors.Record{
		{Value: 10, Mean: 10, Stdev: math.NaN(), Upper: math.NaN(), Lower: math.NaN()},
		{Value: 50, Mean: 10, Stdev: 0.5, Upper: 11.5, Lower: 8.5, Anomaly: true},
	}
	require.NoError(t, w.WriteAll(records))
	require.NoError(t, w.Close())

	want := "x,mean,stdev,upper,lower,anomaly\n" +
		"10,10,NaN,NaN,NaN,false\n" +
		"50,10,0.5,11.5,8.5,true\n"
	assert.Equal(t, want, buf.String())
}

func TestWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.Close())
	assert.Equal(t, "x,mean,stdev,upper,lower,anomaly\n", buf.String())
}

func TestWriterFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(detectors.Record{Value: 1.25, Mean: 1, Stdev: 0.1, Upper: 1.3, Lower: 0.7}))
	require.NoError(t, w.Write(detectors.Record{Value: 9, Mean: 1, Stdev: 0.1, Upper: 1.3, Lower: 0.7, Anomaly: true}))
	require.NoError(t, w.Close())

	r, err := NewReader(path, WithColumn("x"))
	require.NoError(t, err)
	defer r.Close()

	series, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.25, 9}, series)
}
