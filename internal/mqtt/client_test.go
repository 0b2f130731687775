package mqtt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/berfenger/deye2mqtt/internal/config"
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/number_name/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "number_name", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/number_name/command"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestParseInputNumberPayloads(t *testing.T) {

	assert := assert.New(t)

	client := CreateMQTTClient(testConfig(), OptsFromConfig(testConfig()), nil, nil)

	cmd, err := client.ParseMQTTCommand(fakeMessage{topic: "deye/number/active_power_setpoint/set", payload: "-1500"})
	assert.NoError(err)
	assert.Equal("active_power_setpoint", cmd.DeviceId)
	assert.Equal("number", cmd.Command)
	assert.Equal("-1500", cmd.Payload)

	cmd, err = client.ParseMQTTCommand(fakeMessage{topic: "deye/number/surplus_power/set", payload: " none "})
	assert.NoError(err)
	assert.Equal("none", cmd.Payload)

	_, err = client.ParseMQTTCommand(fakeMessage{topic: "deye/number/active_power_setpoint/set", payload: "lots"})
	assert.ErrorIs(err, ErrInvalidCommand)

	_, err = client.ParseMQTTCommand(fakeMessage{topic: "deye/sensor/pv_power/state", payload: "12"})
	assert.ErrorIs(err, ErrInvalidCommand)
}

func TestParseSwitchCommand(t *testing.T) {

	assert := assert.New(t)

	client := CreateMQTTClient(testConfig(), OptsFromConfig(testConfig()), nil, nil)

	cmd, err := client.ParseMQTTCommand(fakeMessage{topic: "deye/switch/read_only_mode/command", payload: "on"})
	assert.NoError(err)
	assert.Equal("read_only_mode", cmd.DeviceId)
	assert.Equal("switch", cmd.Command)
}

func TestClientIdIsUnique(t *testing.T) {

	assert := assert.New(t)

	a, b := ClientId(), ClientId()
	assert.NotEqual(a, b)
	assert.True(strings.HasPrefix(a, "deye2mqtt_"))
}

func TestHADiscoveryTopics(t *testing.T) {

	assert := assert.New(t)

	client := CreateMQTTClient(testConfig(), OptsFromConfig(testConfig()), nil, nil)
	device := domain.Device{Id: "deye_inverter_1234"}

	sensor := domain.GenericSensor{Device: device, Id: "no_smart_meter_detected", SensorType: domain.SENSOR_TYPE_BINARY}
	assert.Equal("ha/binary_sensor/deye_inverter_1234/no_smart_meter_detected/config", HADiscoverySensorTopic("ha", sensor))
	msg := GenericSensorToHADiscoveryMessage(client, sensor)
	assert.Equal("deye/binary_sensor/no_smart_meter_detected/state", msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, msg.PayloadOn)

	number := domain.GenericInputNumber{Device: device, Id: "surplus_power", Min: 0, Max: 8000}
	assert.Equal("ha/number/deye_inverter_1234/surplus_power/config", HADiscoveryInputNumberTopic("ha", number))
	numberMsg := GenericInputNumberToHADiscoveryMessage(client, number)
	payload, err := json.Marshal(numberMsg)
	assert.NoError(err)
	assert.Contains(string(payload), `"min":0`)
	assert.Equal("deye/number/surplus_power/set", numberMsg.CommandTopic)
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload string
}

func (m fakeMessage) Topic() string {
	return m.topic
}

func (m fakeMessage) Payload() []byte {
	return []byte(m.payload)
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "deye",
			HADiscoveryTopic: "ha",
		},
	}
}
