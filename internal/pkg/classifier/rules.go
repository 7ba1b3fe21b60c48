package classifier

import (
	"strings"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/samber/lo"
)

// Rule maps name keywords to a device type. Rules are evaluated in order and the first match wins.
type Rule struct {
	Keywords []string
	Type     model.DeviceType
}

func (r Rule) matches(lowerName string) bool {
	return lo.SomeBy(r.Keywords, func(k string) bool {
		return strings.Contains(lowerName, k)
	})
}

var DefaultRules = []Rule{
	{Keywords: []string{"doorbell"}, Type: model.DeviceTypeDoorbell},
	{Keywords: []string{"sensor", "motion", "detector", "pir"}, Type: model.DeviceTypeSensor},
	{Keywords: []string{"dimmer", "dim", "brightness"}, Type: model.DeviceTypeDimmer},
	{Keywords: []string{"lamp", "light", "bulb", "led"}, Type: model.DeviceTypeLight},
	{Keywords: []string{"blind", "shutter", "curtain", "cover", "screen"}, Type: model.DeviceTypeCover},
	{Keywords: []string{"plug", "socket", "outlet", "switch"}, Type: model.DeviceTypeSwitch},
}

// DefaultCodes maps the vendor product-family code to a type when the name gives no hint.
var DefaultCodes = map[int64]model.DeviceType{
	1: model.DeviceTypeSwitch,
	3: model.DeviceTypeSwitch,
	5: model.DeviceTypeSwitch,
	2: model.DeviceTypeDimmer,
	4: model.DeviceTypeDimmer,
}

var dimmerKeywords = []string{"dimmer", "dim", "brightness", "dimmable"}
