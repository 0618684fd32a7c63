package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes count metrics to a CloudWatch namespace.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	Dimensions map[string]string
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics emitter. dimensions are attached to every datum.
func NewMetrics(cw CloudWatchAPI, namespace string, dimensions map[string]string) *Metrics {
	return &Metrics{
		CloudWatch: cw,
		Namespace:  namespace,
		Dimensions: dimensions,
		nowFunc:    time.Now,
	}
}

// Put writes one Count datum per entry of values in a single PutMetricData call.
func (m *Metrics) Put(ctx context.Context, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	dims := make([]cwtypes.Dimension, 0, len(m.Dimensions))
	for k, v := range m.Dimensions {
		dims = append(dims, cwtypes.Dimension{Name: awsString(k), Value: awsString(v)})
	}
	sort.Slice(dims, func(i, j int) bool { return *dims[i].Name < *dims[j].Name })

	now := m.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(names))
	for _, name := range names {
		v := values[name]
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(name),
			Value:      &v,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &now,
			Dimensions: dims,
		})
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
