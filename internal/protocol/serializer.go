package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// MessageSerializer сериализует netcode-сообщения в проводной формат.
// Полезная нагрузка кодируется JSON: encoding/json сортирует ключи карт,
// поэтому порядок map-полей (inputAcks и т.п.) на проводе детерминирован
// и раунд-трип без потерь. Нагрузки крупнее compressThreshold сжимаются zstd.
type MessageSerializer struct {
	compressor        *zstd.Encoder
	decompressor      *zstd.Decoder
	compressThreshold int
}

// Порог сжатия: мелкие сообщения (вводы, пинги) дороже сжимать, чем слать как есть
const defaultCompressThreshold = 512

// Лимит кадра для защиты от повреждённых длин
const maxFrameSize = 16 * 1024 * 1024

// NewMessageSerializer создаёт сериализатор с zstd-сжатием снимков
func NewMessageSerializer() (*MessageSerializer, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd компрессора: %w", err)
	}

	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd декомпрессора: %w", err)
	}

	return &MessageSerializer{
		compressor:        compressor,
		decompressor:      decompressor,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// BuildEnvelope собирает конверт Message с опциональным сжатием нагрузки
func (ms *MessageSerializer) BuildEnvelope(msgType MessageType, payload interface{}) (*Message, error) {
	payloadData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации полезной нагрузки %s: %w", msgType, err)
	}

	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payloadData,
	}

	if len(payloadData) > ms.compressThreshold {
		msg.Payload = ms.compressor.EncodeAll(payloadData, nil)
		msg.Compressed = true
	}

	return msg, nil
}

// SerializeMessage упаковывает полезную нагрузку в данные кадра
func (ms *MessageSerializer) SerializeMessage(msgType MessageType, payload interface{}) ([]byte, error) {
	msg, err := ms.BuildEnvelope(msgType, payload)
	if err != nil {
		return nil, err
	}
	return MarshalEnvelope(msg)
}

// MarshalEnvelope сериализует уже собранный конверт в данные кадра
func MarshalEnvelope(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации конверта %s: %w", msg.Type, err)
	}
	return data, nil
}

// DeserializeMessage распаковывает конверт Message из данных кадра
func (ms *MessageSerializer) DeserializeMessage(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сообщения: %w", err)
	}

	if msg.Compressed {
		decompressed, err := ms.decompressor.DecodeAll(msg.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("ошибка распаковки полезной нагрузки %s: %w", msg.Type, err)
		}
		msg.Payload = decompressed
		msg.Compressed = false
	}

	return msg, nil
}

// DeserializePayload десериализует полезную нагрузку сообщения в указанный тип
func (ms *MessageSerializer) DeserializePayload(msg *Message, payload interface{}) error {
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return fmt.Errorf("ошибка десериализации полезной нагрузки %s: %w", msg.Type, err)
	}
	return nil
}

// WriteFrame записывает кадр с big-endian префиксом длины (для потоковых каналов)
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("кадр превышает лимит: %d байт", len(data))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("ошибка записи заголовка кадра: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ошибка записи кадра: %w", err)
	}
	return nil
}

// ReadFrame читает кадр с big-endian префиксом длины
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("повреждённый заголовок кадра: %d байт", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("ошибка чтения кадра: %w", err)
	}
	return data, nil
}
