package booking

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

// 予約番号のプレフィックス（店舗コード）
const referencePrefix = "LKC-"

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewReference は人に共有しやすい予約番号を生成する
// 形式: LKC- + ミリ秒タイムスタンプの36進数下位桁 + ランダム3文字
func NewReference() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	if len(ts) > 4 {
		ts = ts[4:]
	}

	suffix := make([]byte, 3)
	for i := 0; i < len(suffix); {
		var b [1]byte
		rand.Read(b[:])
		// アルファベット長の倍数に収まる値だけ採用して剰余の偏りを避ける
		if int(b[0]) >= 252 {
			continue
		}
		suffix[i] = referenceAlphabet[int(b[0])%len(referenceAlphabet)]
		i++
	}

	return referencePrefix + ts + string(suffix)
}
