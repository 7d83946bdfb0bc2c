package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msaintjean27/ChatApplication/internal/chat"
)

func main() {
	fmt.Println("Starting chat server...")

	configPath := flag.String("config", "", "path to JSON configuration file")
	flag.Parse()

	cfg := loadConfig(*configPath)
	chat.SetConfig(cfg)

	if *configPath != "" {
		stop, err := chat.WatchConfig(*configPath)
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		} else {
			defer stop()
		}
	}

	sink, err := chat.OpenFileLog(cfg.LogFile)
	if err != nil {
		log.Fatalf("open chat log: %v", err)
	}
	defer sink.Close()

	registry := chat.NewRegistry(cfg.MaxClients)
	router := chat.NewRouter(registry, sink)
	server := chat.NewServer(registry, router)

	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatalf("start server: %v", err)
	}

	gateway := chat.NewGateway(server)
	if err := gateway.Start(cfg.HTTPAddr); err != nil {
		log.Fatalf("start gateway: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("shutdown signal received")
	if err := gateway.Shutdown(5 * time.Second); err != nil {
		log.Printf("gateway shutdown: %v", err)
	}
	if err := server.Shutdown(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func loadConfig(path string) *chat.Config {
	if path == "" {
		return chat.NewConfigFromEnv()
	}
	cfg, err := chat.LoadConfigFile(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return cfg
}
