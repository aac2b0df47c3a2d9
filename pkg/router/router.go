// Package router partitions a batch of HealthMetrics into modality streams
// by metric-type tag. Pure function, no side effects; iteration order over
// buckets is fixed so downstream fusion sees a stable modality ordering
// (cardio, respiratory, activity, sleep).
package router

import "github.com/clarity-digital-twin/clarity-backend/pkg/model"

// Modality names the fixed bucket order used throughout fusion.
type Modality string

const (
	Cardio      Modality = "cardio"
	Respiratory Modality = "respiratory"
	Activity    Modality = "activity"
	Sleep       Modality = "sleep"
	Other       Modality = "other"
)

// Order is the stable modality iteration order required by fusion's
// positional encoding.
var Order = []Modality{Cardio, Respiratory, Activity, Sleep}

// Organized is the result of routing one batch of metrics.
type Organized struct {
	Buckets map[Modality][]model.HealthMetric
}

var routingTable = map[model.MetricType]Modality{
	model.MetricHeartRate:            Cardio,
	model.MetricHeartRateVariability: Cardio,
	model.MetricBloodPressure:        Cardio,

	model.MetricRespiratoryRate: Respiratory,
	model.MetricBloodOxygen:     Respiratory,

	model.MetricStepCount:       Activity,
	model.MetricActiveEnergy:    Activity,
	model.MetricDistanceWalking: Activity,
	model.MetricExerciseTime:    Activity,
	model.MetricActivityLevel:   Activity,

	model.MetricSleepAnalysis: Sleep,
	model.MetricSleepDuration: Sleep,
}

// Organize partitions metrics into their modality bucket. Every metric
// appears in exactly one bucket; anything not in the routing table lands
// in Other, which downstream stages ignore.
func Organize(metrics []model.HealthMetric) Organized {
	out := Organized{Buckets: map[Modality][]model.HealthMetric{
		Cardio: {}, Respiratory: {}, Activity: {}, Sleep: {}, Other: {},
	}}
	for _, m := range metrics {
		bucket, ok := routingTable[m.Type]
		if !ok {
			bucket = Other
		}
		out.Buckets[bucket] = append(out.Buckets[bucket], m)
	}
	return out
}

// Present reports which of the fixed fusion modalities (Order) have at
// least one metric routed to them.
func (o Organized) Present() []Modality {
	var present []Modality
	for _, m := range Order {
		if len(o.Buckets[m]) > 0 {
			present = append(present, m)
		}
	}
	return present
}
