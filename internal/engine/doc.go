// Package engine は決定的なルールベースのルーティングエンジンを提供する。
//
// 入力テキスト・チャネル・プロダクト・メタデータから、処理経路（ANTIGRAVITY,
// DEEPSEEK, DEEPSEEK_THEN_GPT5 など）を判定する。判定はLLMを呼ばず、
// ルールセットのみで行う。
//
// 判定順序:
//   - 音声チャネルの短い入力をノイズとして除外
//   - 未入力スロットがあれば手続き処理
//   - 短い定型文はローカル処理
//   - インテント照合（static → transactional → critical → conversational）
//   - リスク算出としきい値による経路の強制
//   - コスト上限によるフォールバック
package engine
