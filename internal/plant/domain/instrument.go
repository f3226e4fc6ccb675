package plant

import "fmt"

// Air handling unit 09 instrument keys.
const (
	KeyTemperature = "temperatura-09"
	KeyHumidity    = "humedad-09"
	KeyFilter1     = "presion-fel_1-09"
	KeyFilter2     = "presion-fel_2-09"
	KeyFilter3     = "presion-fel_3-09"
	KeyFinalStage  = "presion-ng-09"
)

// GaugeNumbers lists the differential pressure gauges of room panel TM-SOL-09.
var GaugeNumbers = []int{24, 30, 35, 36, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 72}

// GaugeKey returns the instrument key of a pressure gauge.
func GaugeKey(number int) string {
	return fmt.Sprintf("presion-%d", number)
}

// UnitKeys returns the air handling unit keys in display order.
func UnitKeys() []string {
	return []string{KeyTemperature, KeyHumidity, KeyFilter1, KeyFilter2, KeyFilter3, KeyFinalStage}
}

// GaugeKeys returns the pressure gauge keys in display order.
func GaugeKeys() []string {
	keys := make([]string, 0, len(GaugeNumbers))
	for _, number := range GaugeNumbers {
		keys = append(keys, GaugeKey(number))
	}
	return keys
}

// DefaultKeys returns every instrument key of the plant.
func DefaultKeys() []string {
	return append(UnitKeys(), GaugeKeys()...)
}
