/*
 * Copyright (c) 2021 IBM Corp and others.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v2.0
 * and Eclipse Distribution License v1.0 which accompany this distribution.
 *
 * The Eclipse Public License is available at
 *    https://www.eclipse.org/legal/epl-2.0/
 * and the Eclipse Distribution License is available at
 *   http://www.eclipse.org/org/documents/edl-v10.php.
 *
 * Contributors:
 *    Seth Hoenig
 *    Allan Stockdill-Mander
 *    Mike Robertson
 */

package telemetry

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"go.neose-cxof-flow.gocv-driver/logging"
	"go.neose-cxof-flow.gocv-driver/pipeline"
)

const connectTimeout = 5 * time.Second

// NewMQTTClient connects to broker, e.g. "tcp://192.168.1.57:1883".
func NewMQTTClient(broker string, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.WARNINGLogger.Printf("MQTT connection lost: %v", err)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("MQTT connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "MQTT connect to %s", broker)
	}
	return c, nil
}

// Publisher sends flow telemetry as JSON. Publishing is fire-and-forget so
// a slow broker never stalls the acquisition loop.
type Publisher struct {
	client  mqtt.Client
	topic   string
	session string
}

// NewPublisher connects to broker and publishes under topic.
func NewPublisher(broker, topic string) (*Publisher, error) {
	session := uuid.New().String()
	client, err := NewMQTTClient(broker, "cxof-flow-"+session[:8])
	if err != nil {
		return nil, err
	}
	logging.INFOLogger.Printf("Telemetry to %s/%s, session %s", broker, topic, session)
	return NewPublisherWithClient(client, topic, session), nil
}

func NewPublisherWithClient(client mqtt.Client, topic, session string) *Publisher {
	return &Publisher{client: client, topic: topic, session: session}
}

func (p *Publisher) PublishSample(s pipeline.Sample) error {
	s.Session = p.session
	return publishJsonMsg(p.topic+"/measurement", s, p.client)
}

func (p *Publisher) PublishReport(r pipeline.Report) error {
	r.Session = p.session
	return publishJsonMsg(p.topic+"/report", r, p.client)
}

// PublishFrame sends img as a base64 encoded PNG.
func (p *Publisher) PublishFrame(img *image.Gray) error {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return errors.Wrap(err, "frame to mat")
	}
	defer mat.Close()
	return publishImage(p.topic+"/frame", mat, p.client)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func publishImage(topic string, mat gocv.Mat, mqttClient mqtt.Client) error {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	defer buf.Close()
	imgBytes := buf.GetBytes()
	b64bytes := make([]byte, base64.StdEncoding.EncodedLen(len(imgBytes)))
	base64.StdEncoding.Encode(b64bytes, imgBytes)
	mqttClient.Publish(topic, 0, false, b64bytes)
	return nil
}

func publishJsonMsg(topic string, obj interface{}, mqttClient mqtt.Client) error {
	msg, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	mqttClient.Publish(topic, 0, false, msg)
	return nil
}
