// score-producer feeds synthetic score submissions into the Kafka ingestion
// topic, for load testing and local development.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/lumarush/lumarush-backend/internal/auth"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

type scorePayload struct {
	Score    int64                  `json:"score"`
	Subscore int64                  `json:"subscore"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type scoreMessage struct {
	UserID   string       `json:"user_id"`
	Username string       `json:"username"`
	Payload  scorePayload `json:"payload"`
}

var usernamePrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func playerName(idx int) string {
	prefix := usernamePrefixes[idx%len(usernamePrefixes)]
	return fmt.Sprintf("%s%d", prefix, idx/len(usernamePrefixes)+1)
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "lumarush-scores", "Kafka topic")
	totalPlayers := flag.Int("players", 1000, "Number of distinct players")
	rate := flag.Int("rate", 100, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	log.Printf("producing to %s topic=%s players=%d rate=%d/s", *brokers, *topic, *totalPlayers, *rate)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	send := func(playerIdx int) {
		username := playerName(playerIdx)
		userID := auth.DeriveUserID(domain.AuthProviderDevice, username)

		msg := scoreMessage{
			UserID:   userID,
			Username: username,
			Payload: scorePayload{
				Score:    rand.Int63n(1_000_000),
				Subscore: rand.Int63n(1000),
				Metadata: map[string]interface{}{
					"run":     rand.Intn(100),
					"variant": "producer",
				},
			},
		}

		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("failed to marshal message: %v", err)
			return
		}

		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(userID),
			Value: sarama.ByteEncoder(data),
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	sent := 0
loop:
	for {
		select {
		case <-sigChan:
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			send(rand.Intn(*totalPlayers))
			sent++
		}
	}

	producer.AsyncClose()
	wg.Wait()

	log.Printf("done: sent=%d acked=%d errors=%d",
		sent,
		atomic.LoadInt64(&successCount),
		atomic.LoadInt64(&errorCount),
	)
}
