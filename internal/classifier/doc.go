// Package classifier はv0分類器を提供する。
//
// ルーティングエンジン以前の正準分類器で、インテント・複雑度・リスク・
// カテゴリ・経路ヒントを1回の呼び出しで返す。エンジンと異なりコスト上限や
// チャネル別タイムアウトは扱わない。
package classifier
