// Command offlinesignal is a text-mode driver for the offline
// signal-packet codec (internal/codec): the spec deliberately keeps
// the UI out of scope, but the hard-core codec still needs a
// concrete entrypoint a Go repo can ship and a human can drive
// end-to-end without a browser (SPEC_FULL.md §4, "Packet codec CLI").
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/apperr"
	"github.com/deveshpat/p2p-video-calling-secure/internal/codec"
	"github.com/deveshpat/p2p-video-calling-secure/internal/cryptutil"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

func main() {
	encodeOffer := flag.Bool("encode-offer", false, "read an OfferPayload as JSON from stdin, write a packet to stdout")
	encodeAnswer := flag.Bool("encode-answer", false, "read an AnswerPayload as JSON from stdin, write a packet to stdout")
	decode := flag.Bool("decrypt", false, "read a packet from stdin, decrypt, write the decoded payload as JSON to stdout")
	as := flag.String("as", "offer", "when -decrypt is set, which payload type to expect: offer or answer")
	roomCode := flag.String("room", "", "room code shared out of band with the peer")
	passphrase := flag.String("pass", "", "passphrase shared out of band with the peer")
	flag.Parse()

	if *roomCode == "" || *passphrase == "" {
		log.Fatal("offlinesignal: -room and -pass are required")
	}

	input, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		log.Fatalf("offlinesignal: reading stdin: %v", err)
	}

	switch {
	case *encodeOffer:
		var payload models.OfferPayload
		if err := json.Unmarshal(input, &payload); err != nil {
			log.Fatalf("offlinesignal: parsing offer payload: %v", err)
		}
		packet, err := codec.EncodeOffer(*passphrase, *roomCode, payload, time.Now())
		if err != nil {
			log.Fatalf("offlinesignal: encoding offer: %v", err)
		}
		fmt.Println(packet)

	case *encodeAnswer:
		var payload models.AnswerPayload
		if err := json.Unmarshal(input, &payload); err != nil {
			log.Fatalf("offlinesignal: parsing answer payload: %v", err)
		}
		packet, err := codec.EncodeAnswer(*passphrase, *roomCode, payload, time.Now())
		if err != nil {
			log.Fatalf("offlinesignal: encoding answer: %v", err)
		}
		fmt.Println(packet)

	case *decode:
		guard := cryptutil.NewDecryptGuard()
		if guard.InCooldown(*roomCode) {
			log.Fatal("offlinesignal: SECURITY_COOLDOWN: too many recent decrypt failures for this room code")
		}

		env, err := codec.Decode(string(input))
		if err != nil {
			log.Fatalf("offlinesignal: decoding packet: %v", err)
		}

		var out interface{}
		switch *as {
		case "offer":
			out, err = codec.DecryptOffer(env, *passphrase, *roomCode, time.Now())
		case "answer":
			out, err = codec.DecryptAnswer(env, *passphrase, *roomCode, time.Now())
		default:
			log.Fatalf("offlinesignal: -as must be offer or answer, got %q", *as)
		}
		if err != nil {
			guard.RecordFailure(*roomCode)
			log.Fatalf("offlinesignal: %s", apperr.AsUserFacing(err).Code)
		}
		guard.RecordSuccess(*roomCode)

		body, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("offlinesignal: marshaling payload: %v", err)
		}
		fmt.Println(string(body))

	default:
		log.Fatal("offlinesignal: one of -encode-offer, -encode-answer, or -decrypt is required")
	}
}
