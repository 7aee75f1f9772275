package tele

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	tele_config "github.com/temoto/wetter/tele/config"
)

const (
	defaultKeepalive      = 60 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
	closeQuiesceMs        = 250
)

type transportMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	mopt    *mqtt.ClientOptions
	timeout time.Duration
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, will Will) error {
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = log
	}
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}

	clientID := teleConfig.DeviceID
	credFun := func() (string, string) {
		return clientID, teleConfig.MqttPassword
	}
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, defaultKeepalive)
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(will.Topic, will.Payload, 1, true).
		SetCleanSession(true).
		SetClientID(clientID).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(self.timeout).
		SetWriteTimeout(self.timeout).
		SetOrderMatters(false).
		SetConnectRetryInterval(keepAlive / 2).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry the token completes only after first successful connect, do not wait
	if token := self.m.Connect(); token.Error() != nil {
		self.log.Errorf("tele mqtt connect err=%v", token.Error())
	}
	return nil
}

func (self *transportMqtt) Publish(topic string, retained bool, payload []byte) bool {
	self.log.Debugf("tele mqtt publish topic=%s payload=%s", topic, payload)
	token := self.m.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(self.timeout) {
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Debugf("tele mqtt publish topic=%s err=%v", topic, err)
		return false
	}
	return true
}

func (self *transportMqtt) Close() {
	self.log.Infof("tele mqtt disconnect")
	self.m.Disconnect(closeQuiesceMs)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connected")
}
