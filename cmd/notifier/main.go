package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/ec-audit-core/internal/infrastructure/kafka"
	"github.com/example/ec-audit-core/internal/notification"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	notifyTopic := getEnv("KAFKA_NOTIFICATIONS_TOPIC", "audit-notifications")
	consumerGroup := getEnv("KAFKA_CONSUMER_GROUP", "notifier")

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Audit Core - Notification Worker")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", kafkaBrokers)
	log.Printf("[Notifier] Topic: %s", notifyTopic)
	log.Printf("[Notifier] Group: %s", consumerGroup)

	handler := notification.NewHandler(notification.LogSender{})

	consumer := kafka.NewConsumer(kafkaBrokers, notifyTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting notification consumer...")
		if err := consumer.Consume(ctx, handler.HandleMessage); err != nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
