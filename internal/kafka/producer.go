package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer представляет Kafka producer.
// События доставляются по принципу fire-and-forget: ошибка публикации
// логируется вызывающей стороной и не проваливает основную операцию.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает новый Kafka producer
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll       // Ждем подтверждения от всех реплик
	config.Producer.Retry.Max = 3                          // Максимум 3 попытки
	config.Producer.Return.Successes = true                // Возвращаем успешные результаты
	config.Producer.Compression = sarama.CompressionSnappy // Сжатие данных

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info("Kafka producer created successfully")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishDeliveryCreated публикует событие создания доставки
func (p *Producer) PublishDeliveryCreated(delivery *models.Delivery) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeDeliveryCreated,
		Timestamp: time.Now(),
		Data: models.DeliveryCreatedEvent{
			DeliveryID:    delivery.ID,
			OrderID:       delivery.OrderID,
			CustomerName:  delivery.CustomerName,
			CustomerPhone: delivery.CustomerPhone,
			PickupCity:    delivery.PickupLocation.City,
			DeliveryCity:  delivery.DeliveryLocation.City,
			DeliveryFee:   delivery.DeliveryFee,
		},
	}

	return p.publishEvent(p.topics.Deliveries, event)
}

// PublishDeliveryStatusChanged публикует событие изменения статуса доставки
func (p *Producer) PublishDeliveryStatusChanged(deliveryID uuid.UUID, oldStatus, newStatus models.DeliveryStatus, driverID *uuid.UUID, notes string) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeDeliveryStatusChanged,
		Timestamp: time.Now(),
		Data: models.DeliveryStatusChangedEvent{
			DeliveryID: deliveryID,
			OldStatus:  oldStatus,
			NewStatus:  newStatus,
			DriverID:   driverID,
			Notes:      notes,
			Timestamp:  time.Now(),
		},
	}

	return p.publishEvent(p.topics.Deliveries, event)
}

// PublishDriverAssigned публикует событие назначения водителя
func (p *Producer) PublishDriverAssigned(deliveryID, driverID uuid.UUID, driverName string) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeDriverAssigned,
		Timestamp: time.Now(),
		Data: models.DriverAssignedEvent{
			DeliveryID: deliveryID,
			DriverID:   driverID,
			DriverName: driverName,
			Timestamp:  time.Now(),
		},
	}

	return p.publishEvent(p.topics.Drivers, event)
}

// PublishDriverStatusChanged публикует событие изменения статуса водителя
func (p *Producer) PublishDriverStatusChanged(driverID uuid.UUID, oldStatus, newStatus models.DriverStatus) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeDriverStatusChanged,
		Timestamp: time.Now(),
		Data: models.DriverStatusChangedEvent{
			DriverID:  driverID,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Timestamp: time.Now(),
		},
	}

	return p.publishEvent(p.topics.Drivers, event)
}

// PublishLocationUpdated публикует событие обновления местоположения
func (p *Producer) PublishLocationUpdated(driverID uuid.UUID, lat, lng float64) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeLocationUpdated,
		Timestamp: time.Now(),
		Data: models.LocationUpdatedEvent{
			DriverID:  driverID,
			Lat:       lat,
			Lng:       lng,
			Timestamp: time.Now(),
		},
	}

	return p.publishEvent(p.topics.Locations, event)
}

// publishEvent публикует событие в указанный топик
func (p *Producer) publishEvent(topic string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(event.Timestamp.Format(time.RFC3339)),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithField("topic", topic).
		WithField("partition", partition).
		WithField("offset", offset).
		WithField("event_type", event.Type).
		WithField("event_id", event.ID).
		Debug("Event published successfully")

	return nil
}
